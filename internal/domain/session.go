package domain

import "time"

// Step is a named state in the verification conversation.
type Step string

const (
	StepIntro      Step = "intro"
	StepConsent    Step = "consent"
	StepName       Step = "name"
	StepDOB        Step = "dob"
	StepProvider   Step = "provider"
	StepPolicyID   Step = "policyId"
	StepConfirm    Step = "confirm"
	StepSubmitting Step = "submitting"
	StepResult     Step = "result"
	StepError      Step = "error"
	StepEnd        Step = "end"
)

// FieldSteps lists the data-collection steps in the order they are asked.
var FieldSteps = []Step{StepName, StepDOB, StepProvider, StepPolicyID}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepIntro, StepConsent, StepName, StepDOB, StepProvider, StepPolicyID,
		StepConfirm, StepSubmitting, StepResult, StepError, StepEnd:
		return true
	}
	return false
}

// Terminal reports whether the step only accepts a restart action.
func (s Step) Terminal() bool {
	return s == StepResult || s == StepError || s == StepEnd
}

// Sender identifies who authored a transcript message.
type Sender string

const (
	SenderBot  Sender = "bot"
	SenderUser Sender = "user"
)

// Message is a single transcript entry.
type Message struct {
	ID        int       `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PartialPatientRecord accumulates confirmed fields while the conversation runs.
type PartialPatientRecord struct {
	Name              string `json:"name,omitempty"`
	DateOfBirth       string `json:"dateOfBirth,omitempty"`
	InsuranceProvider string `json:"insuranceProvider,omitempty"`
	PolicyID          string `json:"policyId,omitempty"`
}

// Get returns the value collected for a field step.
func (p PartialPatientRecord) Get(step Step) string {
	switch step {
	case StepName:
		return p.Name
	case StepDOB:
		return p.DateOfBirth
	case StepProvider:
		return p.InsuranceProvider
	case StepPolicyID:
		return p.PolicyID
	}
	return ""
}

// With returns a copy of p with the field for step set to value.
func (p PartialPatientRecord) With(step Step, value string) PartialPatientRecord {
	switch step {
	case StepName:
		p.Name = value
	case StepDOB:
		p.DateOfBirth = value
	case StepProvider:
		p.InsuranceProvider = value
	case StepPolicyID:
		p.PolicyID = value
	}
	return p
}

// Complete reports whether every field has been collected.
func (p PartialPatientRecord) Complete() bool {
	return p.Name != "" && p.DateOfBirth != "" && p.InsuranceProvider != "" && p.PolicyID != ""
}

// Record converts a complete partial record into a PatientRecord.
func (p PartialPatientRecord) Record() (PatientRecord, bool) {
	if !p.Complete() {
		return PatientRecord{}, false
	}
	return PatientRecord{
		Name:     p.Name,
		DOB:      p.DateOfBirth,
		Provider: p.InsuranceProvider,
		PolicyID: p.PolicyID,
	}, true
}

// PatientRecord is the four-field bundle submitted for verification.
type PatientRecord struct {
	Name     string `json:"name"`
	DOB      string `json:"dob"`
	Provider string `json:"provider"`
	PolicyID string `json:"policyId"`
}

// Session is the persisted state of one verification conversation.
type Session struct {
	SessionID       string               `json:"sessionId"`
	Step            Step                 `json:"step"`
	CollectedFields PartialPatientRecord `json:"collectedFields"`
	Transcript      []Message            `json:"transcript"`
	ConsentGiven    bool                 `json:"consentGiven"`
	Result          *VerificationResult  `json:"result,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	LastActivityAt  time.Time            `json:"lastActivityAt"`
	// Revision is bumped on every save; version-aware stores use it for
	// optimistic concurrency.
	Revision int64 `json:"revision"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Transcript = append([]Message(nil), s.Transcript...)
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return &out
}
