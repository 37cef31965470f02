package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/udflow/internal/download"
	"github.com/roach88/udflow/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	FeatureID string // optional - specific instance only
}

// ReplayFeatureResult holds the replay result for a single instance.
type ReplayFeatureResult struct {
	FeatureID   string              `json:"feature_id"`
	Name        string              `json:"name"`
	Transitions int                 `json:"transitions"`
	Effects     int                 `json:"effects"`
	Digest      string              `json:"digest,omitempty"`
	Matched     bool                `json:"matched"`
	Divergence  *journal.Divergence `json:"divergence,omitempty"`
	Skipped     string              `json:"skipped,omitempty"`
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Features   []ReplayFeatureResult `json:"features"`
	Total      int                   `json:"total"`
	AllMatched bool                  `json:"all_matched"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-fold recorded results and verify determinism",
		Long: `Re-fold the recorded results of each feature instance through its
reducer and compare every state and effect with the journal.

A divergence means the reducer no longer produces what was recorded, or
the journal was altered.

Exit codes:
  0 - All instances replayed identically
  1 - At least one instance diverged
  2 - Command error (journal not found, etc.)

Examples:
  udflow replay --db ./udflow.db
  udflow replay --db ./udflow.db --feature 0190c8a1-...
  udflow replay --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default $UDFLOW_DB)")
	cmd.Flags().StringVar(&opts.FeatureID, "feature", "", "replay a specific instance only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	var features []journal.Feature
	if opts.FeatureID != "" {
		feat, err := resolveFeature(ctx, j, opts.FeatureID)
		if err != nil {
			return err
		}
		features = []journal.Feature{feat}
	} else {
		features, err = j.ListFeatures(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list features", err)
		}
	}

	summary := ReplaySummary{
		Features:   make([]ReplayFeatureResult, 0, len(features)),
		Total:      len(features),
		AllMatched: true,
	}
	for _, feat := range features {
		r, err := replayFeature(ctx, j, feat)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay %s", feat.ID), err)
		}
		summary.Features = append(summary.Features, r)
		if !r.Matched && r.Skipped == "" {
			summary.AllMatched = false
		}
	}

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if out.JSON() {
		if !summary.AllMatched {
			if err := out.Failure(summary, CodeDiverged, "replay diverged from the journal"); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "replay diverged from the journal")
		}
		return out.Success(summary)
	}

	return outputReplayText(cmd.OutOrStdout(), summary, opts.Verbose)
}

// replayFeature replays one instance with the reducer registered for its
// feature name.
func replayFeature(ctx context.Context, j *journal.Journal, feat journal.Feature) (ReplayFeatureResult, error) {
	result := ReplayFeatureResult{FeatureID: feat.ID, Name: feat.Name}

	if feat.Name != download.Name {
		result.Skipped = fmt.Sprintf("no reducer for feature %q", feat.Name)
		return result, nil
	}

	initial := download.NewDownloader(download.DefaultInterval, nil).Definition().Initial
	r, err := journal.Replay[download.State, download.Result, download.Effect](
		ctx, j, feat.ID, initial, download.DecodeResult, download.Reduce,
	)
	if err != nil {
		return result, err
	}

	digest, err := j.Digest(ctx, feat.ID)
	if err != nil {
		return result, err
	}

	result.Digest = digest
	result.Transitions = r.Transitions
	result.Effects = r.Effects
	result.Matched = r.OK()
	result.Divergence = r.Divergence
	return result, nil
}

func outputReplayText(w io.Writer, summary ReplaySummary, verbose bool) error {
	fmt.Fprintf(w, "Replay Summary: %d feature(s)\n", summary.Total)
	fmt.Fprintln(w)

	for _, f := range summary.Features {
		status := "✓"
		switch {
		case f.Skipped != "":
			status = "-"
		case !f.Matched:
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s %s\n", status, f.Name, f.FeatureID)

		if f.Skipped != "" {
			fmt.Fprintf(w, "  Skipped: %s\n", f.Skipped)
		} else if verbose {
			fmt.Fprintf(w, "  Transitions: %d\n", f.Transitions)
			fmt.Fprintf(w, "  Effects: %d\n", f.Effects)
			fmt.Fprintf(w, "  Digest: %s\n", f.Digest)
		} else {
			fmt.Fprintf(w, "  Events: %d transitions, %d effects\n", f.Transitions, f.Effects)
		}
		if f.Divergence != nil {
			fmt.Fprintf(w, "  Divergence: %s\n", f.Divergence)
		}
		fmt.Fprintln(w)
	}

	if summary.AllMatched {
		fmt.Fprintln(w, "✓ All features replayed identically")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay diverged from the journal")
	return NewExitError(ExitFailure, "replay diverged from the journal")
}
