package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/udflow/internal/download"
	"github.com/roach88/udflow/internal/feature"
	"github.com/roach88/udflow/internal/journal"
	"github.com/roach88/udflow/internal/testutil"
)

// pollInterval is how often await steps re-check their condition.
const pollInterval = time.Millisecond

// Harness executes one scenario against a live download feature.
type Harness struct {
	pipeline   *download.Pipeline
	downloader *download.Downloader
	journal    *journal.Journal
	logger     *slog.Logger

	mu      sync.Mutex
	effects map[string]int
}

// Run executes a scenario and returns its result.
//
// Each run gets a fresh in-memory journal and a fixed instance id, so two
// runs of the same scenario produce the same condensed trace.
//
// Execution flow:
//  1. Start a download feature with the journal attached
//  2. Execute steps in order; a failed await stops the steps
//  3. Close the feature and read its journal
//  4. Condense the trace and evaluate assertions
//
// An error is returned only for harness failures; step and assertion
// failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	interval, err := scenario.interval()
	if err != nil {
		return nil, err
	}
	intake, err := feature.ParseIntakePolicy(scenario.Intake)
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := download.NewDownloader(interval, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := download.New(runCtx, d,
		feature.WithObserver(j),
		feature.WithIntake(intake),
		feature.WithLogger(logger),
		feature.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.FeatureID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start feature: %w", err)
	}

	h := &Harness{
		pipeline:   p,
		downloader: d,
		journal:    j,
		logger:     logger,
		effects:    make(map[string]int),
	}

	effCtx, stopEffects := context.WithCancel(runCtx)
	collected := h.collectEffects(effCtx)

	result := NewResult()
	result.FeatureID = p.ID()

	for i, step := range scenario.Steps {
		if err := h.executeStep(runCtx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			break
		}
	}

	p.Close()
	stopEffects()
	<-collected

	if err := h.condense(ctx, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(&result.Summary, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// collectEffects counts effects by kind until ctx ends. The returned channel
// closes when collection has stopped.
func (h *Harness) collectEffects(ctx context.Context) <-chan struct{} {
	effects := h.pipeline.Effects(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range effects {
			h.mu.Lock()
			h.effects[e.Kind()]++
			h.mu.Unlock()
		}
	}()
	return done
}

func (h *Harness) effectCount(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.effects[kind]
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch {
	case step.Click != nil:
		from := h.pipeline.State().Value()
		if step.Click.State != "" {
			from = stateOf(step.Click.State, from)
		}
		if !h.pipeline.Process(download.ClickEvent{State: from}) {
			h.logger.Debug("click dropped", "from", from.Kind())
		}
		return nil

	case step.Await != nil:
		return h.await(ctx, step.Await)

	default:
		d, err := time.ParseDuration(step.Sleep)
		if err != nil {
			return err
		}
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// stateOf builds the state a click is made from. A "downloading" click keeps
// the current progress when there is one.
func stateOf(kind string, current download.State) download.State {
	if kind == (download.IdleState{}).Kind() {
		return download.IdleState{}
	}
	if ds, ok := current.(download.DownloadingState); ok {
		return ds
	}
	return download.DownloadingState{}
}

func (h *Harness) await(ctx context.Context, a *AwaitStep) error {
	timeout, err := a.timeout()
	if err != nil {
		return err
	}
	want := a.Count
	if want < 1 {
		want = 1
	}

	met := func() bool {
		if a.State != "" {
			s := h.pipeline.State().Value()
			if s.Kind() != a.State {
				return false
			}
			if ds, ok := s.(download.DownloadingState); ok && ds.Percent < a.Percent {
				return false
			}
		}
		if a.Effect != "" && h.effectCount(a.Effect) < want {
			return false
		}
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !met() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("await %s timed out after %s", describeAwait(a, want), timeout)
		case <-ticker.C:
		}
	}
	return nil
}

func describeAwait(a *AwaitStep, count int) string {
	var parts []string
	if a.State != "" {
		s := "state " + a.State
		if a.Percent > 0 {
			s += fmt.Sprintf(" >= %d%%", a.Percent)
		}
		parts = append(parts, s)
	}
	if a.Effect != "" {
		parts = append(parts, fmt.Sprintf("effect %s x%d", a.Effect, count))
	}
	return fmt.Sprint(parts)
}

// condense reads the run's journal into the trace and summary of result.
func (h *Harness) condense(ctx context.Context, result *Result) error {
	feat, err := h.journal.GetFeature(ctx, result.FeatureID)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	timeline, err := h.journal.Timeline(ctx, result.FeatureID)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	sum := &result.Summary
	sum.Launches = h.downloader.Launches()
	sum.FinalState = feat.InitialKind
	sum.States = append(sum.States, feat.InitialKind)

	for _, e := range timeline {
		if e.Effect != nil {
			sum.Effects[e.Effect.Kind]++
			result.addEffect(e.Effect.Kind)
			continue
		}

		t := e.Transition
		sum.Results[t.ResultKind]++
		result.addFold(t.ResultKind, t.StateKind)

		sum.FinalState = t.StateKind
		state, err := download.DecodeState(t.StateKind, t.State)
		if err != nil {
			return fmt.Errorf("decode state at seq %d: %w", t.Seq, err)
		}
		sum.FinalPercent = 0
		if ds, ok := state.(download.DownloadingState); ok {
			sum.FinalPercent = ds.Percent
		}
		if sum.States[len(sum.States)-1] != t.StateKind {
			sum.States = append(sum.States, t.StateKind)
		}
	}
	return nil
}
