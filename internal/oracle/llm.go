package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"insurance-agent/internal/domain"
	"insurance-agent/internal/integrations/openai"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type ChatClient interface {
	Chat(ctx context.Context, in openai.ChatRequest) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

var coverageSchema = &openai.Schema{
	Name: "coverage_result",
	Definition: json.RawMessage(`{
		"type":"object",
		"additionalProperties":false,
		"properties":{
			"status":{"type":"string","enum":["Verified","Review Needed","Plan Not Found"]},
			"planName":{"type":"string"},
			"coverageSummary":{"type":"string"},
			"nextSteps":{"type":"string"}
		},
		"required":["status","planName","coverageSummary","nextSteps"]
	}`),
}

// LLM asks a chat model to classify coverage against a knowledge base held in
// Parameter Store. The model name and knowledge base are loaded on first use
// and kept for the life of the process; a failed load is retried next call.
type LLM struct {
	params      ParamGetter
	chat        ChatClient
	paramPrefix string
	facility    string

	cacheMu       sync.RWMutex
	cacheLoaded   bool
	model         string
	knowledgeBase string
}

func NewLLM(p ParamGetter, chat ChatClient, paramPrefix, facility string) (*LLM, error) {
	if p == nil {
		return nil, errors.New("oracle: param getter must not be nil")
	}
	if chat == nil {
		return nil, errors.New("oracle: chat client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("oracle: parameter prefix must not be empty")
	}
	if strings.TrimSpace(facility) == "" {
		facility = "NewVisionWellness"
	}
	return &LLM{params: p, chat: chat, paramPrefix: paramPrefix, facility: facility}, nil
}

func (l *LLM) Submit(ctx context.Context, req Request) (domain.VerificationResult, error) {
	if err := precheck(req); err != nil {
		return domain.VerificationResult{}, err
	}
	if err := l.ensureConfig(ctx); err != nil {
		return domain.VerificationResult{}, serviceErr("llm_config", err)
	}

	l.cacheMu.RLock()
	model, kb := l.model, l.knowledgeBase
	l.cacheMu.RUnlock()

	temp := 0.2
	raw, err := l.chat.Chat(ctx, openai.ChatRequest{
		Model:       model,
		Messages:    verificationMessages(l.facility, kb, req.Record),
		Temperature: &temp,
		Schema:      coverageSchema,
	})
	if err != nil {
		return domain.VerificationResult{}, classifyChatErr(err)
	}
	return Normalize([]byte(raw))
}

// classifyChatErr treats any upstream HTTP status as a service failure and
// everything else (dial, timeout, cancellation) as a network failure.
func classifyChatErr(err error) error {
	var status httpStatusCoder
	if errors.As(err, &status) {
		return serviceErr("llm", err)
	}
	return networkErr("llm", err)
}

func (l *LLM) ensureConfig(ctx context.Context) error {
	l.cacheMu.RLock()
	if l.cacheLoaded {
		l.cacheMu.RUnlock()
		return nil
	}
	l.cacheMu.RUnlock()

	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	if l.cacheLoaded {
		return nil
	}

	model, err := l.params.GetParameter(ctx, l.paramPrefix+"/config/openai_model")
	if err != nil {
		return fmt.Errorf("load openai model: %w", err)
	}
	kb, err := l.params.GetParameter(ctx, l.paramPrefix+"/knowledge_base")
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("openai model parameter is empty")
	}

	l.model = model
	l.knowledgeBase = strings.TrimSpace(kb)
	l.cacheLoaded = true
	return nil
}

func verificationMessages(facility, knowledgeBase string, r domain.PatientRecord) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: specialistPrompt(facility, knowledgeBase)},
		{Role: "user", Content: patientPrompt(facility, r)},
	}
}

func specialistPrompt(facility, knowledgeBase string) string {
	return strings.Join([]string{
		"Role:",
		"You are an insurance verification specialist for the treatment center " + facility + ".",
		"",
		"Knowledge Base:",
		knowledgeBase,
		"",
		"Status Rules:",
		"- Verified: the provider is recognized and the policy ID is valid.",
		"- Review Needed: the policy looks valid but may need pre-authorization, such as a group number.",
		"- Plan Not Found: the provider is not on the recognized list.",
		"",
		"Output Contract:",
		"- Respond only with the JSON object required by the response schema.",
		"- planName is \"N/A\" when no plan is found.",
		"- nextSteps always names a concrete action for the patient.",
		"- Be professional, clear and reassuring.",
	}, "\n")
}

func patientPrompt(facility string, r domain.PatientRecord) string {
	return strings.Join([]string{
		"A potential patient is verifying their insurance for services at " + facility + ".",
		"Patient Information:",
		"- Name: " + r.Name,
		"- Date of Birth: " + r.DOB,
		"- Insurance Provider: " + r.Provider,
		"- Policy ID: " + r.PolicyID,
		"",
		"Determine the coverage against your knowledge base.",
	}, "\n")
}
