package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	// States is the condensed state sequence, for context.
	States []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "  States: %s", strings.Join(e.States, " -> "))
	return buf.String()
}

// EvaluateAssertions checks every assertion against sum and returns the
// failure messages. All assertions are evaluated; none short-circuits.
func EvaluateAssertions(sum *Summary, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(sum, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(sum *Summary, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		return assertFinalState(sum, a)
	case AssertStateSequence:
		return assertStateSequence(sum, a)
	case AssertEffectCount:
		return assertCount(sum, a.Type, "effect "+a.Effect, sum.Effects[a.Effect], a.Count)
	case AssertResultCount:
		return assertCount(sum, a.Type, "result "+a.Result, sum.Results[a.Result], a.Count)
	case AssertJobLaunches:
		return assertCount(sum, a.Type, "job launches", int(sum.Launches), a.Count)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFinalState(sum *Summary, a Assertion) error {
	if sum.FinalState != a.State {
		return &AssertionError{
			Type:     a.Type,
			Expected: a.State,
			Actual:   sum.FinalState,
			States:   sum.States,
		}
	}
	if a.Percent != nil && sum.FinalPercent != *a.Percent {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s at %d%%", a.State, *a.Percent),
			Actual:   fmt.Sprintf("%s at %d%%", sum.FinalState, sum.FinalPercent),
			States:   sum.States,
		}
	}
	return nil
}

func assertStateSequence(sum *Summary, a Assertion) error {
	if !slices.Equal(sum.States, a.States) {
		return &AssertionError{
			Type:     a.Type,
			Expected: strings.Join(a.States, " -> "),
			Actual:   strings.Join(sum.States, " -> "),
			States:   sum.States,
		}
	}
	return nil
}

func assertCount(sum *Summary, typ, what string, got, want int) error {
	if got != want {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%s = %d", what, want),
			Actual:   fmt.Sprintf("%s = %d", what, got),
			States:   sum.States,
		}
	}
	return nil
}
