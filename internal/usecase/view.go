package usecase

import "insurance-agent/internal/domain"

// Icon tags which result graphic a client shows.
type Icon string

const (
	IconNone     Icon = "none"
	IconVerified Icon = "verified"
	IconReview   Icon = "review"
	IconNotFound Icon = "not_found"
	IconError    Icon = "error"
)

// View is what a client renders for one session.
type View struct {
	SessionKey   string                     `json:"sessionKey"`
	SessionID    string                     `json:"sessionId"`
	Step         domain.Step                `json:"step"`
	InputEnabled bool                       `json:"inputEnabled"`
	Messages     []domain.Message           `json:"messages"`
	Result       *domain.VerificationResult `json:"result,omitempty"`
	Title        string                     `json:"title,omitempty"`
	Icon         Icon                       `json:"icon"`
}

func newView(key string, s *domain.Session, p Policy) View {
	v := View{
		SessionKey:   key,
		SessionID:    s.SessionID,
		Step:         s.Step,
		InputEnabled: inputEnabled(s.Step, p),
		Messages:     append([]domain.Message(nil), s.Transcript...),
		Icon:         IconNone,
	}
	if s.Result != nil {
		r := *s.Result
		v.Result = &r
		v.Title = r.Status.Title()
		switch r.Status {
		case domain.StatusVerified:
			v.Icon = IconVerified
		case domain.StatusReviewNeeded:
			v.Icon = IconReview
		default:
			v.Icon = IconNotFound
		}
	}
	if s.Step == domain.StepError {
		v.Icon = IconError
	}
	return v
}

func inputEnabled(step domain.Step, p Policy) bool {
	switch step {
	case domain.StepSubmitting, domain.StepEnd:
		return false
	case domain.StepConsent:
		return !p.explicitConsent()
	}
	return true
}
