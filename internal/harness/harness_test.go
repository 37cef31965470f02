package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CompleteDownload(t *testing.T) {
	scenario := &Scenario{
		Name:        "complete",
		Description: "Run a download to completion",
		Steps: []Step{
			{Click: &ClickStep{}},
			{Await: &AwaitStep{Effect: "completed"}},
			{Await: &AwaitStep{State: "idle"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, State: "idle"},
			{Type: AssertJobLaunches, Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors=%v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "test-feature-default", result.FeatureID)

	sum := result.Summary
	assert.Equal(t, "idle", sum.FinalState)
	assert.Equal(t, []string{"idle", "downloading", "idle"}, sum.States)
	assert.Equal(t, 101, sum.Results["downloading"])
	assert.Equal(t, 1, sum.Results["completed"])
	assert.Equal(t, 2, sum.Results["idle"])
	assert.Equal(t, 1, sum.Effects["halfway"])
	assert.Equal(t, 1, sum.Effects["completed"])
	assert.Equal(t, int64(1), sum.Launches)

	require.Len(t, result.Trace, 7)
	assert.Equal(t, TraceEntry{Type: EntryFold, Result: "idle", State: "idle"}, result.Trace[0])
	assert.Equal(t, TraceEntry{Type: EntryEffect, Effect: "halfway"}, result.Trace[2])
	assert.Equal(t, TraceEntry{Type: EntryFold, Result: "completed", State: "downloading"}, result.Trace[4])
	assert.Equal(t, TraceEntry{Type: EntryFold, Result: "idle", State: "idle"}, result.Trace[6])
}

func TestRun_FailedAssertionsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong",
		Description: "Expect the wrong outcome",
		FeatureID:   "custom-id",
		Steps: []Step{
			{Await: &AwaitStep{State: "idle"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, State: "downloading"},
			{Type: AssertJobLaunches, Count: 3},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, "custom-id", result.FeatureID)
	assert.Equal(t, []string{"idle"}, result.Summary.States)
}

func TestRun_AwaitTimeout(t *testing.T) {
	scenario := &Scenario{
		Name:        "timeout",
		Description: "Wait for something that never happens",
		Steps: []Step{
			{Await: &AwaitStep{Effect: "completed", Timeout: "20ms"}},
			{Click: &ClickStep{}},
		},
		Assertions: []Assertion{
			{Type: AssertJobLaunches, Count: 0},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0]")
	assert.Contains(t, result.Errors[0], "timed out")
	// The click after the failed await never ran.
	assert.Equal(t, int64(0), result.Summary.Launches)
}

func TestRun_CancelStopsDownload(t *testing.T) {
	scenario := &Scenario{
		Name:        "cancel",
		Description: "Cancel a running download",
		Interval:    "10ms",
		Steps: []Step{
			{Click: &ClickStep{}},
			{Await: &AwaitStep{State: "downloading", Percent: 1}},
			{Click: &ClickStep{}},
			{Await: &AwaitStep{State: "idle"}},
			{Sleep: "50ms"},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, State: "idle"},
			{Type: AssertEffectCount, Effect: "completed", Count: 0},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)

	// Nothing is folded after the Idle produced by the cancel.
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, TraceEntry{Type: EntryFold, Result: "idle", State: "idle"}, last)
	assert.Less(t, result.Summary.Results["downloading"], 101)
}

func TestRun_FinalPercentFromJournal(t *testing.T) {
	scenario := &Scenario{
		Name:        "stop_mid_download",
		Description: "End the run while the download is still going",
		Interval:    "10ms",
		Steps: []Step{
			{Click: &ClickStep{}},
			{Await: &AwaitStep{State: "downloading", Percent: 5}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, State: "downloading"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)
	assert.Equal(t, "downloading", result.Summary.FinalState)
	assert.GreaterOrEqual(t, result.Summary.FinalPercent, 5)
	assert.Less(t, result.Summary.FinalPercent, 100)
}

func TestRun_InvalidOptions(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "x", Interval: "soon"})
	require.Error(t, err)

	_, err = Run(context.Background(), &Scenario{Name: "x", Intake: "stack"})
	require.Error(t, err)
}

func TestResult_AddFoldMergesRepeats(t *testing.T) {
	r := NewResult()
	r.addFold("downloading", "downloading")
	r.addFold("downloading", "downloading")
	r.addEffect("halfway")
	r.addFold("downloading", "downloading")
	r.addFold("completed", "downloading")

	assert.Equal(t, []TraceEntry{
		{Type: EntryFold, Result: "downloading", State: "downloading"},
		{Type: EntryEffect, Effect: "halfway"},
		{Type: EntryFold, Result: "downloading", State: "downloading"},
		{Type: EntryFold, Result: "completed", State: "downloading"},
	}, r.Trace)
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
}
