package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"insurance-agent/internal/domain"
	"insurance-agent/internal/oracle"
	"insurance-agent/internal/session"
	"insurance-agent/internal/usecase"
)

type scriptedPrompter struct {
	answers []string
	choices []int
	labels  []string
}

func (s *scriptedPrompter) Ask(label string) (string, error) {
	s.labels = append(s.labels, label)
	if len(s.answers) == 0 {
		return "", errQuit
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *scriptedPrompter) Choose(label string, _ []string) (int, error) {
	s.labels = append(s.labels, label)
	if len(s.choices) == 0 {
		return 0, errQuit
	}
	c := s.choices[0]
	s.choices = s.choices[1:]
	return c, nil
}

func newTestEngine(t *testing.T, policy usecase.Policy) *usecase.Engine {
	t.Helper()
	e, err := usecase.NewEngine(session.NewMemoryStore(), oracle.NewCanned(), usecase.WithPolicy(policy))
	require.NoError(t, err)
	return e
}

func TestRunChat_StandardFlow(t *testing.T) {
	e := newTestEngine(t, usecase.StandardPolicy())
	p := &scriptedPrompter{answers: []string{"Jane Doe", "01/02/1980", "Aetna", "ABC123456", "yes", "thanks"}}
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), e, p, &out))
	require.Contains(t, out.String(), "Gold PPO")
	require.Empty(t, p.answers)
}

func TestRunChat_ReportsInvalidInputAndContinues(t *testing.T) {
	e := newTestEngine(t, usecase.StandardPolicy())
	p := &scriptedPrompter{answers: []string{"   ", strings.Repeat("a", 600), "Jane Doe"}}
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), e, p, &out))
	require.Empty(t, p.answers)
	require.Contains(t, out.String(), "(message too long)")
}

func TestRunChat_ExplicitConsentUsesChoice(t *testing.T) {
	e := newTestEngine(t, usecase.SecurePolicy())
	p := &scriptedPrompter{choices: []int{1}}
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), e, p, &out))
	require.Equal(t, []string{"Consent"}, p.labels)
	require.Contains(t, out.String(), usecase.AdmissionsPhone)
}

func TestPrintSubmissions(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printSubmissions(&out, nil))
	require.Equal(t, "no submissions\n", out.String())

	out.Reset()
	require.NoError(t, printSubmissions(&out, []domain.Submission{{
		SubmissionID: "sub-1",
		SubmittedAt:  time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC),
		Patient:      domain.PatientRecord{Name: "Jane Doe", Provider: "Aetna"},
		Result:       domain.VerificationResult{Status: domain.StatusVerified, PlanName: "Aetna Gold PPO"},
	}}))
	require.Contains(t, out.String(), "sub-1")
	require.Contains(t, out.String(), "2026-03-04 09:30")
	require.Contains(t, out.String(), "Aetna Gold PPO")
	require.NotContains(t, out.String(), "DOB")
}

func TestPrintTrail(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printTrail(&out, "sess-1", nil))
	require.Equal(t, "no audit events for session sess-1\n", out.String())

	out.Reset()
	require.NoError(t, printTrail(&out, "sess-1", []domain.AuditEvent{{
		EventID:   "ev-1",
		SessionID: "sess-1",
		Action:    domain.AuditConsentGiven,
		Step:      domain.StepConsent,
		At:        time.Date(2026, 3, 4, 9, 30, 15, 0, time.UTC),
	}}))
	require.Contains(t, out.String(), "2026-03-04 09:30:15")
	require.Contains(t, out.String(), "consent_given")
	require.Contains(t, out.String(), "ev-1")
}

func TestRootCmd_Commands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"serve", "chat", "submissions", "audit", "hash-password"})
}
