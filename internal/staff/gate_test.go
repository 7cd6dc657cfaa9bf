package staff

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"insurance-agent/internal/domain"
	"insurance-agent/internal/usecase"
)

type fakeLedger struct {
	subs []domain.Submission
	err  error
}

func (f *fakeLedger) List(context.Context) ([]domain.Submission, error) { return f.subs, f.err }

type fakeTrail struct {
	events []domain.AuditEvent
	err    error
	asked  string
}

func (f *fakeTrail) Trail(_ context.Context, sessionID string) ([]domain.AuditEvent, error) {
	f.asked = sessionID
	return f.events, f.err
}

func testHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func expectCode(t *testing.T, err error, code usecase.ErrorCode, reason string) {
	t.Helper()
	var ue *usecase.Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, code, ue.Code)
	require.Equal(t, reason, ue.Reason)
}

func TestGate_Submissions(t *testing.T) {
	ledger := &fakeLedger{subs: []domain.Submission{{SubmissionID: "sub-1"}}}
	g, err := NewGate(testHash(t, "admissions-demo"), ledger)
	require.NoError(t, err)

	subs, err := g.Submissions(context.Background(), "admissions-demo")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	_, err = g.Submissions(context.Background(), "wrong")
	expectCode(t, err, usecase.ErrorUnauthorized, "bad_staff_password")

	_, err = g.Submissions(context.Background(), "")
	expectCode(t, err, usecase.ErrorUnauthorized, "bad_staff_password")
}

func TestGate_LedgerFailure(t *testing.T) {
	g, err := NewGate(testHash(t, "admissions-demo"), &fakeLedger{err: errors.New("scan failed")})
	require.NoError(t, err)
	_, err = g.Submissions(context.Background(), "admissions-demo")
	expectCode(t, err, usecase.ErrorInternal, "ledger_read_error")
}

func TestGate_DisabledWithoutHash(t *testing.T) {
	g, err := NewGate("", Empty{})
	require.NoError(t, err)
	_, err = g.Submissions(context.Background(), "anything")
	expectCode(t, err, usecase.ErrorUnauthorized, "staff_gate_disabled")
}

func TestGate_EmptyLedgerListsNothing(t *testing.T) {
	g, err := NewGate(testHash(t, "admissions-demo"), Empty{})
	require.NoError(t, err)
	subs, err := g.Submissions(context.Background(), "admissions-demo")
	require.NoError(t, err)
	require.NotNil(t, subs)
	require.Empty(t, subs)
}

func TestNewGate_Validation(t *testing.T) {
	_, err := NewGate("plaintext", Empty{})
	require.ErrorContains(t, err, "bcrypt")

	_, err = NewGate("", nil)
	require.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	require.Error(t, err)

	h, err := HashPassword("admissions-demo")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("admissions-demo")))
}

func TestGate_AuditTrail(t *testing.T) {
	trail := &fakeTrail{events: []domain.AuditEvent{{EventID: "e1", SessionID: "s1", Action: domain.AuditDataAccess}}}
	g, err := NewGate(testHash(t, "admissions-demo"), Empty{}, WithAuditReader(trail))
	require.NoError(t, err)

	events, err := g.AuditTrail(context.Background(), "admissions-demo", "s1")
	require.NoError(t, err)
	require.Equal(t, trail.events, events)
	require.Equal(t, "s1", trail.asked)

	_, err = g.AuditTrail(context.Background(), "wrong", "s1")
	expectCode(t, err, usecase.ErrorUnauthorized, "bad_staff_password")

	_, err = g.AuditTrail(context.Background(), "admissions-demo", " ")
	expectCode(t, err, usecase.ErrorInvalidInput, "session_id_required")

	trail.events, trail.err = nil, errors.New("query failed")
	_, err = g.AuditTrail(context.Background(), "admissions-demo", "s1")
	expectCode(t, err, usecase.ErrorInternal, "audit_read_error")

	trail.err = nil
	events, err = g.AuditTrail(context.Background(), "admissions-demo", "s2")
	require.NoError(t, err)
	require.NotNil(t, events)
	require.Empty(t, events)
}

func TestGate_AuditTrailWithoutReader(t *testing.T) {
	g, err := NewGate(testHash(t, "admissions-demo"), Empty{})
	require.NoError(t, err)
	_, err = g.AuditTrail(context.Background(), "admissions-demo", "s1")
	expectCode(t, err, usecase.ErrorInternal, "audit_log_disabled")
}
