package validation

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"insurance-agent/internal/domain"
)

func TestName(t *testing.T) {
	require.NoError(t, Name("Jane Doe"))
	require.NoError(t, Name("  Al  "))
	require.ErrorIs(t, Name("J"), ErrInvalidInput)
	require.ErrorIs(t, Name("   J   "), ErrInvalidInput)
	require.ErrorIs(t, Name(""), ErrInvalidInput)
}

func TestDateOfBirth(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"04/12/1990", true},
		{"12/31/2001", true},
		{"01/01/0000", true},
		{"02/30/2020", true}, // calendar validity is not checked
		{" 04/12/1990 ", true},
		{"13/01/1990", false},
		{"00/10/1990", false},
		{"04/32/1990", false},
		{"04/00/1990", false},
		{"4/12/1990", false},
		{"04-12-1990", false},
		{"04/12/90", false},
		{"1990-04-12", false},
		{"", false},
	}
	for _, tc := range cases {
		err := DateOfBirth(tc.in)
		if tc.ok {
			require.NoError(t, err, "input=%q", tc.in)
		} else {
			require.ErrorIs(t, err, ErrInvalidInput, "input=%q", tc.in)
		}
	}
}

func TestProviderAndPolicyID(t *testing.T) {
	require.NoError(t, Provider("Aetna"))
	require.ErrorIs(t, Provider("A"), ErrInvalidInput)
	require.NoError(t, PolicyID("AB1"))
	require.ErrorIs(t, PolicyID("AB"), ErrInvalidInput)
}

func TestField_Dispatch(t *testing.T) {
	require.NoError(t, Field(domain.StepName, "Jane"))
	require.ErrorIs(t, Field(domain.StepDOB, "x"), ErrInvalidInput)
	require.NoError(t, Field(domain.StepProvider, "Cigna"))
	require.NoError(t, Field(domain.StepPolicyID, "123"))
	require.Error(t, Field(domain.StepConfirm, "yes"))
}

func TestDateOfBirth_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every in-range MM/DD/YYYY is accepted", prop.ForAll(
		func(month, day, year int) bool {
			return DateOfBirth(fmt.Sprintf("%02d/%02d/%04d", month, day, year)) == nil
		},
		gen.IntRange(1, 12),
		gen.IntRange(1, 31),
		gen.IntRange(0, 9999),
	))

	properties.Property("out-of-range months are rejected", prop.ForAll(
		func(month, day int) bool {
			return DateOfBirth(fmt.Sprintf("%02d/%02d/1990", month, day)) != nil
		},
		gen.IntRange(13, 99),
		gen.IntRange(1, 31),
	))

	properties.TestingRun(t)
}

func TestMinLength_Property(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("policy ids shorter than three runes are rejected", prop.ForAll(
		func(s string) bool {
			if len([]rune(s)) >= 3 {
				return true
			}
			return PolicyID(s) != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
