package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/udflow/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FeatureID string // optional - defaults to the latest instance
	Changes   bool   // only folds that changed the state
}

// TraceEvent is one line of the trace timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Type      string `json:"type"` // "fold" or "effect"
	Result    string `json:"result,omitempty"`
	State     string `json:"state,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Changed   bool   `json:"changed,omitempty"`
	Effect    string `json:"effect,omitempty"`
	Delivered int    `json:"delivered,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Folds   int `json:"folds"`
	Changes int `json:"changes"`
	Effects int `json:"effects"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Feature  journal.Feature `json:"feature"`
	Digest   string          `json:"digest"`
	Timeline []TraceEvent    `json:"timeline"`
	Stats    TraceStats      `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the journal timeline of a feature instance",
		Long: `Print every recorded fold and effect of a feature instance in order.

Each fold shows the result kind and the state it produced; the effects
emitted while folding follow their fold. Without --feature the most
recently started instance is traced.

Examples:
  udflow trace --db ./udflow.db
  udflow trace --db ./udflow.db --feature 0190c8a1-...
  udflow trace --changes --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default $UDFLOW_DB)")
	cmd.Flags().StringVar(&opts.FeatureID, "feature", "", "feature instance id (default latest)")
	cmd.Flags().BoolVar(&opts.Changes, "changes", false, "only show folds that changed the state")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd, opts.Database)
	if err != nil {
		return err
	}

	j, err := openExisting(cfg.DB)
	if err != nil {
		return err
	}
	defer j.Close()

	feat, err := resolveFeature(ctx, j, opts.FeatureID)
	if err != nil {
		return err
	}

	timeline, err := j.Timeline(ctx, feat.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	digest, err := j.Digest(ctx, feat.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest journal", err)
	}

	result := TraceResult{
		Feature:  feat,
		Digest:   digest,
		Timeline: buildTimeline(timeline, opts.Changes),
	}
	for _, e := range timeline {
		switch {
		case e.Effect != nil:
			result.Stats.Effects++
		case e.Transition.Changed:
			result.Stats.Folds++
			result.Stats.Changes++
		default:
			result.Stats.Folds++
		}
	}

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if out.JSON() {
		return out.Success(result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// buildTimeline converts journal entries to trace events. With changesOnly,
// folds that left the state unchanged are skipped; effects are always kept.
func buildTimeline(entries []journal.Entry, changesOnly bool) []TraceEvent {
	timeline := []TraceEvent{}
	for _, e := range entries {
		if e.Effect != nil {
			timeline = append(timeline, TraceEvent{
				Seq:       e.Seq,
				Type:      "effect",
				Effect:    e.Effect.Kind,
				Delivered: e.Effect.Delivered,
			})
			continue
		}
		t := e.Transition
		if changesOnly && !t.Changed {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:     e.Seq,
			Type:    "fold",
			Result:  t.ResultKind,
			State:   t.StateKind,
			Payload: string(t.State),
			Changed: t.Changed,
		})
	}
	return timeline
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for %s %s\n", result.Feature.Name, result.Feature.ID)
	fmt.Fprintf(w, "Initial: %s\n", result.Feature.InitialKind)
	fmt.Fprintf(w, "Digest:  %s\n", result.Digest)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Folds:   %d\n", result.Stats.Folds)
	fmt.Fprintf(w, "  Changes: %d\n", result.Stats.Changes)
	fmt.Fprintf(w, "  Effects: %d\n", result.Stats.Effects)
}

func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	switch event.Type {
	case "fold":
		marker := " "
		if !event.Changed {
			marker = "="
		}
		fmt.Fprintf(w, "  [%d] %s FOLD %s -> %s\n", event.Seq, marker, event.Result, event.State)
		if verbose {
			fmt.Fprintf(w, "         State: %s\n", event.Payload)
		}
	case "effect":
		fmt.Fprintf(w, "  [%d]   EFFECT %s\n", event.Seq, event.Effect)
		if verbose {
			fmt.Fprintf(w, "         Delivered: %d\n", event.Delivered)
		}
	}
}

// openExisting opens a journal file without creating it.
func openExisting(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

// resolveFeature returns instance id, or the latest instance when id is
// empty.
func resolveFeature(ctx context.Context, j *journal.Journal, id string) (journal.Feature, error) {
	if id != "" {
		feat, err := j.GetFeature(ctx, id)
		if errors.Is(err, journal.ErrNotFound) {
			return journal.Feature{}, NewExitError(ExitCommandError, fmt.Sprintf("feature not found: %s", id))
		}
		if err != nil {
			return journal.Feature{}, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return feat, nil
	}

	features, err := j.ListFeatures(ctx)
	if err != nil {
		return journal.Feature{}, WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if len(features) == 0 {
		return journal.Feature{}, NewExitError(ExitCommandError, "journal has no feature instances")
	}
	return features[len(features)-1], nil
}
