// Package session persists in-progress verification conversations.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"insurance-agent/internal/domain"
)

var (
	// ErrCorrupt marks persisted data that could not be decoded into a valid
	// session. Callers treat it as "no prior session".
	ErrCorrupt = errors.New("session: corrupt record")
	// ErrConflict is returned by version-aware stores when the session was
	// saved by another writer since it was loaded.
	ErrConflict = errors.New("session: revision conflict")
)

// Store is the key-value contract the conversation engine depends on.
// Load returns (nil, nil) when nothing is stored under key.
type Store interface {
	Load(ctx context.Context, key string) (*domain.Session, error)
	Save(ctx context.Context, key string, s *domain.Session) error
	Clear(ctx context.Context, key string) error
}

// Encode serializes a session as the JSON record shape shared by all stores.
func Encode(s *domain.Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("session: encode nil session")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	return b, nil
}

// Decode parses and checks a stored record. Any failure wraps ErrCorrupt.
func Decode(raw []byte) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := check(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &s, nil
}

func check(s *domain.Session) error {
	if s.SessionID == "" {
		return errors.New("missing sessionId")
	}
	if !s.Step.Valid() {
		return fmt.Errorf("unknown step %q", s.Step)
	}
	for i, m := range s.Transcript {
		if m.Sender != domain.SenderBot && m.Sender != domain.SenderUser {
			return fmt.Errorf("message %d has unknown sender %q", i, m.Sender)
		}
	}
	// Fields may only be present for steps the conversation has passed.
	current := slices.Index(domain.FieldSteps, s.Step)
	if current < 0 {
		switch s.Step {
		case domain.StepIntro, domain.StepConsent:
			current = 0
		default:
			current = len(domain.FieldSteps)
		}
	}
	for i, f := range domain.FieldSteps {
		if i >= current && s.CollectedFields.Get(f) != "" {
			return fmt.Errorf("field for step %q present at step %q", f, s.Step)
		}
	}
	if s.Result != nil && !s.Result.Status.Valid() {
		return fmt.Errorf("result has unknown status %q", s.Result.Status)
	}
	return nil
}
