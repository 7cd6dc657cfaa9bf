// Package staff guards the submissions dashboard behind the single shared
// demo password.
package staff

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"insurance-agent/internal/domain"
	"insurance-agent/internal/usecase"
)

type SubmissionLister interface {
	List(ctx context.Context) ([]domain.Submission, error)
}

// AuditReader returns the access events recorded for one session.
type AuditReader interface {
	Trail(ctx context.Context, sessionID string) ([]domain.AuditEvent, error)
}

type Gate struct {
	hash   []byte
	ledger SubmissionLister
	audit  AuditReader
}

type GateOption func(*Gate)

func WithAuditReader(r AuditReader) GateOption {
	return func(g *Gate) { g.audit = r }
}

// NewGate accepts a bcrypt hash of the staff password. An empty hash leaves
// the dashboard locked.
func NewGate(passwordHash string, ledger SubmissionLister, opts ...GateOption) (*Gate, error) {
	if ledger == nil {
		return nil, errors.New("staff: ledger must not be nil")
	}
	passwordHash = strings.TrimSpace(passwordHash)
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, errors.New("staff: password hash is not a bcrypt hash")
		}
	}
	g := &Gate{hash: []byte(passwordHash), ledger: ledger}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gate) authorize(password string) error {
	if len(g.hash) == 0 {
		return &usecase.Error{Code: usecase.ErrorUnauthorized, Reason: "staff_gate_disabled"}
	}
	if password == "" || bcrypt.CompareHashAndPassword(g.hash, []byte(password)) != nil {
		return &usecase.Error{Code: usecase.ErrorUnauthorized, Reason: "bad_staff_password"}
	}
	return nil
}

// Submissions returns the latest submissions when password matches.
func (g *Gate) Submissions(ctx context.Context, password string) ([]domain.Submission, error) {
	if err := g.authorize(password); err != nil {
		return nil, err
	}
	subs, err := g.ledger.List(ctx)
	if err != nil {
		return nil, &usecase.Error{Code: usecase.ErrorInternal, Reason: "ledger_read_error", Err: err}
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	return subs, nil
}

// AuditTrail returns the access events for sessionID when password matches.
func (g *Gate) AuditTrail(ctx context.Context, password, sessionID string) ([]domain.AuditEvent, error) {
	if err := g.authorize(password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "session_id_required"}
	}
	if g.audit == nil {
		return nil, &usecase.Error{Code: usecase.ErrorInternal, Reason: "audit_log_disabled"}
	}
	events, err := g.audit.Trail(ctx, sessionID)
	if err != nil {
		return nil, &usecase.Error{Code: usecase.ErrorInternal, Reason: "audit_read_error", Err: err}
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	return events, nil
}

// HashPassword produces the value to configure as staff_password_hash.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("staff: password must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Empty is a SubmissionLister for deployments without a ledger.
type Empty struct{}

func (Empty) List(context.Context) ([]domain.Submission, error) { return nil, nil }
