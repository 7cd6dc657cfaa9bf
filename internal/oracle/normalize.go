package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"insurance-agent/internal/domain"
)

const responseSchemaURL = "https://insurance-agent.local/schemas/verification-result.json"

// ResponseSchema is the contract every oracle response must satisfy. The
// status enum admits the spaced spellings some upstreams produce. Unknown
// keys are ignored and an empty coverage summary is allowed.
const ResponseSchema = `{
	"type": "object",
	"properties": {
		"status": {
			"type": "string",
			"enum": ["Verified", "ReviewNeeded", "Review Needed", "PlanNotFound", "Plan Not Found"]
		},
		"planName": {"type": "string"},
		"coverageSummary": {"type": "string"},
		"nextSteps": {"type": "string"}
	},
	"required": ["status", "planName", "coverageSummary", "nextSteps"]
}`

var responseSchema = mustCompile(responseSchemaURL, ResponseSchema)

func mustCompile(url, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("oracle: load schema: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("oracle: compile schema: %v", err))
	}
	return compiled
}

var statusAliases = map[string]domain.Status{
	"Verified":       domain.StatusVerified,
	"ReviewNeeded":   domain.StatusReviewNeeded,
	"Review Needed":  domain.StatusReviewNeeded,
	"PlanNotFound":   domain.StatusPlanNotFound,
	"Plan Not Found": domain.StatusPlanNotFound,
}

// Normalize validates a raw oracle response and maps it onto the three
// contract statuses. Any violation is a ServiceError.
func Normalize(raw []byte) (domain.VerificationResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.VerificationResult{}, serviceErr("normalize", errors.New("empty response"))
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.VerificationResult{}, serviceErr("normalize", fmt.Errorf("decode: %w", err))
	}
	if err := responseSchema.Validate(doc); err != nil {
		return domain.VerificationResult{}, serviceErr("normalize", fmt.Errorf("schema: %w", err))
	}

	var body struct {
		Status          string `json:"status"`
		PlanName        string `json:"planName"`
		CoverageSummary string `json:"coverageSummary"`
		NextSteps       string `json:"nextSteps"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.VerificationResult{}, serviceErr("normalize", fmt.Errorf("decode: %w", err))
	}
	status, ok := statusAliases[body.Status]
	if !ok {
		return domain.VerificationResult{}, serviceErr("normalize", fmt.Errorf("unknown status %q", body.Status))
	}
	return domain.VerificationResult{
		Status:          status,
		PlanName:        strings.TrimSpace(body.PlanName),
		CoverageSummary: strings.TrimSpace(body.CoverageSummary),
		NextSteps:       strings.TrimSpace(body.NextSteps),
	}, nil
}
