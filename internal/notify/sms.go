// Package notify tells the admissions team about completed verifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"insurance-agent/internal/domain"
)

// messageCreator is the part of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMS texts the admissions phone when a verification completes. The text
// carries the submission ID, status and plan name only; patient details stay
// in the ledger.
type SMS struct {
	api  messageCreator
	from string
	to   string
}

type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

func NewSMS(cfg SMSConfig) (*SMS, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("notify: account SID and auth token must be provided")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newSMS(client.Api, cfg.From, cfg.To)
}

func newSMS(api messageCreator, from, to string) (*SMS, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, errors.New("notify: from and to numbers must be provided")
	}
	return &SMS{api: api, from: from, to: to}, nil
}

// Complete sends the admissions text for sub.
func (s *SMS) Complete(_ context.Context, sub domain.Submission) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(body(sub))

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("notify: send admissions sms for %s: %w", sub.SubmissionID, err)
	}
	if msg != nil && msg.Sid != nil {
		slog.Debug("admissions sms sent", "submission_id", sub.SubmissionID, "sid", *msg.Sid)
	}
	return nil
}

func body(sub domain.Submission) string {
	plan := sub.Result.PlanName
	if plan == "" {
		plan = "N/A"
	}
	return fmt.Sprintf("New insurance verification %s: %s (plan: %s). Details are in the staff dashboard.",
		sub.SubmissionID, sub.Result.Status.Title(), plan)
}
