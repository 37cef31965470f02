package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/udflow/internal/journal"
)

// TraceSnapshot is the golden-file form of a run.
type TraceSnapshot struct {
	Scenario  string       `json:"scenario"`
	FeatureID string       `json:"feature_id"`
	Trace     []TraceEntry `json:"trace"`
}

// Snapshot returns the canonical JSON snapshot of result.
func Snapshot(name string, result *Result) ([]byte, error) {
	return journal.Canonical(TraceSnapshot{
		Scenario:  name,
		FeatureID: result.FeatureID,
		Trace:     result.Trace,
	})
}

// RunWithGolden executes a scenario and compares its condensed trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
