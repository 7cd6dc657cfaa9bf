// Package validation holds the pure field checks that gate each step of the
// verification conversation.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"insurance-agent/internal/domain"
)

// ErrInvalidInput is returned for any field that fails validation.
var ErrInvalidInput = errors.New("validation: invalid input")

// dobPattern accepts MM/DD/YYYY with month 01-12 and day 01-31. Calendar
// validity (e.g. 02/30) is not checked.
var dobPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/(0[1-9]|[12]\d|3[01])/\d{4}$`)

func minLength(field, input string, n int) error {
	if utf8.RuneCountInString(strings.TrimSpace(input)) < n {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidInput, field, n)
	}
	return nil
}

// Name accepts names of at least two characters after trimming.
func Name(input string) error {
	return minLength("name", input, 2)
}

// DateOfBirth accepts strict MM/DD/YYYY.
func DateOfBirth(input string) error {
	if !dobPattern.MatchString(strings.TrimSpace(input)) {
		return fmt.Errorf("%w: date of birth must be MM/DD/YYYY", ErrInvalidInput)
	}
	return nil
}

// Provider accepts provider names of at least two characters.
func Provider(input string) error {
	return minLength("provider", input, 2)
}

// PolicyID accepts policy or member IDs of at least three characters.
func PolicyID(input string) error {
	return minLength("policy id", input, 3)
}

// Field dispatches to the validator for a field step.
func Field(step domain.Step, input string) error {
	switch step {
	case domain.StepName:
		return Name(input)
	case domain.StepDOB:
		return DateOfBirth(input)
	case domain.StepProvider:
		return Provider(input)
	case domain.StepPolicyID:
		return PolicyID(input)
	}
	return fmt.Errorf("validation: step %q has no field", step)
}
