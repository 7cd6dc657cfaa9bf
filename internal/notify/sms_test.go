package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"insurance-agent/internal/domain"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func submission() domain.Submission {
	return domain.Submission{
		SubmissionID: "sub-1",
		SubmittedAt:  time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		SessionID:    "sess-1",
		Patient:      domain.PatientRecord{Name: "Jane Doe", DOB: "04/12/1990", Provider: "Aetna", PolicyID: "AETNA123456"},
		Result:       domain.VerificationResult{Status: domain.StatusVerified, PlanName: "Aetna Gold PPO"},
	}
}

func TestSMS_Complete(t *testing.T) {
	api := &fakeCreator{}
	sms, err := newSMS(api, "+15550001111", " +15550002222 ")
	require.NoError(t, err)

	require.NoError(t, sms.Complete(context.Background(), submission()))
	require.Len(t, api.params, 1)
	p := api.params[0]
	require.Equal(t, "+15550002222", *p.To)
	require.Equal(t, "+15550001111", *p.From)
	require.Contains(t, *p.Body, "sub-1")
	require.Contains(t, *p.Body, "Benefits Verified")
	require.Contains(t, *p.Body, "Aetna Gold PPO")

	for _, phi := range []string{"Jane Doe", "04/12/1990", "AETNA123456"} {
		require.NotContains(t, *p.Body, phi)
	}
}

func TestSMS_CompleteError(t *testing.T) {
	sms, err := newSMS(&fakeCreator{err: errors.New("21211 invalid 'To'")}, "+1", "+2")
	require.NoError(t, err)
	err = sms.Complete(context.Background(), submission())
	require.ErrorContains(t, err, "sub-1")
	require.ErrorContains(t, err, "21211")
}

func TestNewSMS_Validation(t *testing.T) {
	_, err := NewSMS(SMSConfig{From: "+1", To: "+2"})
	require.ErrorContains(t, err, "account SID")

	_, err = NewSMS(SMSConfig{AccountSID: "AC1", AuthToken: "tok", From: "+1"})
	require.ErrorContains(t, err, "numbers")

	sms, err := NewSMS(SMSConfig{AccountSID: "AC1", AuthToken: "tok", From: "+1", To: "+2"})
	require.NoError(t, err)
	require.NotNil(t, sms.api)
}

func TestBody_MissingPlan(t *testing.T) {
	sub := submission()
	sub.Result = domain.VerificationResult{Status: domain.StatusPlanNotFound}
	require.Contains(t, body(sub), "Plan Not Found (plan: N/A)")
}
