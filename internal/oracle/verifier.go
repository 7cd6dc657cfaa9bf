// Package oracle is the boundary to the external verification service. Every
// implementation returns a normalized domain.VerificationResult or an *Error
// classified as a network or service failure.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"insurance-agent/internal/domain"
)

// ErrConsentRequired is returned when a submission is attempted without
// explicit consent. No request leaves the process in that case.
var ErrConsentRequired = errors.New("oracle: patient consent is required")

// ErrIncompleteRecord is returned when any of the four fields is blank.
var ErrIncompleteRecord = errors.New("oracle: patient record is incomplete")

// Kind classifies an oracle failure.
type Kind string

const (
	NetworkError Kind = "NetworkError"
	ServiceError Kind = "ServiceError"
)

// Error is a failed verification attempt.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("oracle: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("oracle: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func networkErr(op string, err error) error {
	return &Error{Kind: NetworkError, Op: op, Err: err}
}

func serviceErr(op string, err error) error {
	return &Error{Kind: ServiceError, Op: op, Err: err}
}

// KindOf reports the failure kind of err. Context expiry counts as a network
// failure; anything unclassified is a service failure.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NetworkError
	}
	return ServiceError
}

// Request is one submission. SessionID correlates the call and carries no PHI.
type Request struct {
	SessionID string
	Record    domain.PatientRecord
	Consent   bool
}

// Verifier submits a completed, consented record for verification.
type Verifier interface {
	Submit(ctx context.Context, req Request) (domain.VerificationResult, error)
}

// precheck enforces the request preconditions shared by every implementation.
func precheck(req Request) error {
	if !req.Consent {
		return ErrConsentRequired
	}
	r := req.Record
	if r.Name == "" || r.DOB == "" || r.Provider == "" || r.PolicyID == "" {
		return ErrIncompleteRecord
	}
	return nil
}
