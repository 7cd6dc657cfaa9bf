package oracle

import (
	"context"
	"strings"
	"unicode"

	"insurance-agent/internal/domain"
)

// knownProviders maps lower-cased spellings onto display names.
var knownProviders = map[string]string{
	"aetna":                  "Aetna",
	"blue cross":             "Blue Cross",
	"blue cross blue shield": "Blue Cross Blue Shield",
	"bcbs":                   "BCBS",
	"cigna":                  "Cigna",
	"unitedhealthcare":       "UnitedHealthcare",
	"united healthcare":      "UnitedHealthcare",
}

// Canned is a deterministic Verifier that applies the in-network rules of the
// admissions knowledge base without calling out.
type Canned struct{}

func NewCanned() *Canned { return &Canned{} }

func (Canned) Submit(ctx context.Context, req Request) (domain.VerificationResult, error) {
	if err := precheck(req); err != nil {
		return domain.VerificationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.VerificationResult{}, networkErr("canned", err)
	}
	return classify(req.Record), nil
}

func classify(r domain.PatientRecord) domain.VerificationResult {
	provider, ok := knownProviders[strings.ToLower(strings.Join(strings.Fields(r.Provider), " "))]
	if !ok {
		return domain.VerificationResult{
			Status:          domain.StatusPlanNotFound,
			PlanName:        "N/A",
			CoverageSummary: "We could not locate a plan from " + strings.TrimSpace(r.Provider) + " in our network.",
			NextSteps:       "Please call our admissions team so we can verify your benefits manually.",
		}
	}

	id := strings.ToUpper(strings.TrimSpace(r.PolicyID))
	letters, digits := 0, 0
	for _, c := range id {
		switch {
		case unicode.IsLetter(c):
			letters++
		case unicode.IsDigit(c):
			digits++
		}
	}

	switch {
	case strings.HasPrefix(id, "GRP") || len(id) < 6:
		return domain.VerificationResult{
			Status:          domain.StatusReviewNeeded,
			PlanName:        provider + " Employer Group Plan",
			CoverageSummary: "This looks like an employer group plan. Intensive outpatient services may require pre-authorization.",
			NextSteps:       "Our team will contact " + provider + " to confirm pre-authorization requirements and call you back.",
		}
	case digits > 0 && letters == 0:
		return domain.VerificationResult{
			Status:          domain.StatusVerified,
			PlanName:        provider + " Silver",
			CoverageSummary: "Covers IOP services at 60% after a $2500 deductible is met.",
			NextSteps:       "Our admissions team will call you to confirm your benefits and next steps.",
		}
	case digits > 0 && letters > 0:
		return domain.VerificationResult{
			Status:          domain.StatusVerified,
			PlanName:        provider + " Gold PPO",
			CoverageSummary: "Covers IOP services at 80% after a $500 deductible is met.",
			NextSteps:       "Our admissions team will call you to confirm your benefits and next steps.",
		}
	default:
		return domain.VerificationResult{
			Status:          domain.StatusReviewNeeded,
			PlanName:        provider,
			CoverageSummary: "We found your provider but could not match the policy ID to a plan tier.",
			NextSteps:       "Our team will review your policy details and follow up.",
		}
	}
}
