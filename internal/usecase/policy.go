package usecase

import (
	"fmt"
	"strings"
	"unicode"
)

// ConsentMode selects how HIPAA consent is captured.
type ConsentMode string

const (
	// ConsentImplicit shows a privacy notice in the greeting and treats
	// continuing as consent.
	ConsentImplicit ConsentMode = "implicit"
	// ConsentExplicit inserts a consent step before any field is collected.
	ConsentExplicit ConsentMode = "explicit"
)

// ConfirmMode selects which replies at the confirm step submit the record.
type ConfirmMode string

const (
	ConfirmPrefixY ConfirmMode = "prefix_y"
	ConfirmKeyword ConfirmMode = "keyword"
)

// Policy holds the knobs that distinguish the widget variants. Rejecting the
// summary always restarts the conversation.
type Policy struct {
	Name         string
	Consent      ConsentMode
	Confirm      ConfirmMode
	ClearOnClose bool
}

// StandardPolicy is the public widget: implicit consent, any reply starting
// with "y" confirms, sessions survive close for resume.
func StandardPolicy() Policy {
	return Policy{Name: "standard", Consent: ConsentImplicit, Confirm: ConfirmPrefixY}
}

// SecurePolicy asks for consent first, requires "confirm" or "yes", and
// clears stored state when the widget closes.
func SecurePolicy() Policy {
	return Policy{Name: "secure", Consent: ConsentExplicit, Confirm: ConfirmKeyword, ClearOnClose: true}
}

func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return StandardPolicy(), nil
	case "secure":
		return SecurePolicy(), nil
	}
	return Policy{}, fmt.Errorf("usecase: unknown variant %q", name)
}

func (p Policy) explicitConsent() bool {
	return p.Consent == ConsentExplicit
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasWord(text string, want ...string) bool {
	for _, w := range words(text) {
		for _, x := range want {
			if w == x {
				return true
			}
		}
	}
	return false
}

func (p Policy) confirms(text string) bool {
	text = strings.TrimSpace(text)
	if p.Confirm == ConfirmKeyword {
		return hasWord(text, "confirm", "confirmed", "yes")
	}
	return strings.HasPrefix(strings.ToLower(text), "y")
}

func agrees(text string) bool {
	if hasWord(text, "no", "not", "decline", "disagree") {
		return false
	}
	return hasWord(text, "agree", "yes", "y", "ok", "okay", "consent", "accept")
}

func declines(text string) bool {
	return hasWord(text, "no", "n", "not", "decline", "disagree")
}

func wantsRestart(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range []string{"start over", "try again", "restart", "new verification", "start new"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return lower == "new" || lower == "start"
}
