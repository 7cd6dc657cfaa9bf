package domain

import "time"

// Status is the coverage classification returned by the verification oracle.
type Status string

const (
	StatusVerified     Status = "Verified"
	StatusReviewNeeded Status = "ReviewNeeded"
	StatusPlanNotFound Status = "PlanNotFound"
)

// Valid reports whether s is one of the three contract statuses.
func (s Status) Valid() bool {
	return s == StatusVerified || s == StatusReviewNeeded || s == StatusPlanNotFound
}

// Title is the heading shown above a result.
func (s Status) Title() string {
	switch s {
	case StatusVerified:
		return "Benefits Verified"
	case StatusReviewNeeded:
		return "Review Needed"
	default:
		return "Plan Not Found"
	}
}

// VerificationResult is the display-only outcome of a verification.
type VerificationResult struct {
	Status          Status `json:"status"`
	PlanName        string `json:"planName"`
	CoverageSummary string `json:"coverageSummary"`
	NextSteps       string `json:"nextSteps"`
}

// Submission is a completed verification recorded for staff follow-up.
type Submission struct {
	SubmissionID string             `json:"submissionId"`
	SubmittedAt  time.Time          `json:"submittedAt"`
	SessionID    string             `json:"sessionId"`
	Patient      PatientRecord      `json:"patientData"`
	Result       VerificationResult `json:"verificationResult"`
}
