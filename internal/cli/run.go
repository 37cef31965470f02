package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/udflow/internal/download"
	"github.com/roach88/udflow/internal/feature"
	"github.com/roach88/udflow/internal/journal"
	"github.com/roach88/udflow/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	Interval     time.Duration
	CancelAfter  time.Duration
	Restart      bool
	Intake       string
	EffectBuffer int

	// IDs overrides the instance id generator. Used by tests.
	IDs feature.IDGenerator
}

// RunResult is the outcome of a headless run.
type RunResult struct {
	FeatureID  string   `json:"feature_id"`
	FinalState string   `json:"final_state"`
	Percent    int      `json:"percent,omitempty"`
	States     int      `json:"states"`
	Effects    []string `json:"effects"`
	Launches   int64    `json:"launches"`
	Cancelled  bool     `json:"cancelled"`
	Restarted  bool     `json:"restarted"`
	// Interrupted is true when the run was stopped by a signal.
	Interrupted bool `json:"interrupted,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a download feature headless",
		Long: `Start a download feature, click its button and print every state
change and effect until the download completes.

With --cancel-after the running download is cancelled by a second click
after the given duration. With --restart a third click starts a new
download once the cancelled one is idle.

The run is recorded in the journal; use "udflow trace" and "udflow replay"
with the printed feature id to inspect it.

Examples:
  udflow run --db ./udflow.db
  udflow run --interval 10ms --cancel-after 300ms --restart
  udflow run --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default $UDFLOW_DB)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "tick interval (default $UDFLOW_TICK_INTERVAL)")
	cmd.Flags().DurationVar(&opts.CancelAfter, "cancel-after", 0, "cancel the download after this long")
	cmd.Flags().BoolVar(&opts.Restart, "restart", false, "start again after a cancel")
	cmd.Flags().StringVar(&opts.Intake, "intake", "", "event intake policy: queue or latest (default $UDFLOW_INTAKE)")
	cmd.Flags().IntVar(&opts.EffectBuffer, "effect-buffer", 0, "per-subscriber effect buffer (default $UDFLOW_EFFECT_BUFFER)")

	return cmd
}

func runDownload(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd, opts.Database)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		cfg.TickInterval = opts.Interval
	}
	if cmd.Flags().Changed("intake") {
		cfg.Intake = opts.Intake
	}
	if cmd.Flags().Changed("effect-buffer") {
		cfg.EffectBuffer = opts.EffectBuffer
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Restart && opts.CancelAfter <= 0 {
		return NewExitError(ExitCommandError, "--restart requires --cancel-after")
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	// Use the command's context if available (for testing).
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.TracingEnabled())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("error flushing traces", "error", err)
		}
	}()

	j, err := journal.Open(cfg.DB, journal.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			logger.Error("error closing journal", "error", err)
		}
	}()

	d := download.NewDownloader(cfg.TickInterval, logger)
	p, err := download.New(ctx, d,
		feature.WithObserver(j),
		feature.WithLogger(logger),
		feature.WithIntake(cfg.IntakePolicy()),
		feature.WithEffectBuffer(cfg.EffectBuffer),
		feature.WithIDGenerator(opts.IDs),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start feature", err)
	}
	defer p.Close()

	logger.Debug("feature started", "id", p.ID(), "db", cfg.DB, "interval", cfg.TickInterval)
	out.Printf("feature %s\n", p.ID())

	result := drive(ctx, p, opts, out)
	p.Close()
	result.Launches = d.Launches()

	if out.JSON() {
		return out.Success(result)
	}
	if result.Interrupted {
		out.Printf("interrupted\n")
	}
	return nil
}

// drive clicks the button and follows the feature until the run is over.
func drive(ctx context.Context, p *download.Pipeline, opts *RunOptions, out *OutputFormatter) RunResult {
	result := RunResult{FeatureID: p.ID(), Effects: []string{}}

	subCtx, unsubscribe := context.WithCancel(ctx)
	defer unsubscribe()
	states := p.State().Subscribe(subCtx)
	effects := p.Effects(subCtx)

	var cancelTimer <-chan time.Time
	if opts.CancelAfter > 0 {
		timer := time.NewTimer(opts.CancelAfter)
		defer timer.Stop()
		cancelTimer = timer.C
	}

	var current download.State = download.IdleState{}
	completed := 0
	started := false

	click := func() {
		p.Process(download.ClickEvent{State: current})
	}

	for {
		select {
		case <-ctx.Done():
			result.Interrupted = true
			return finish(result, current)

		case <-p.Done():
			result.Interrupted = ctx.Err() != nil
			return finish(result, current)

		case s, ok := <-states:
			if !ok {
				return finish(result, current)
			}
			current = s
			result.States++
			printState(out, s)

		case e, ok := <-effects:
			if !ok {
				return finish(result, current)
			}
			result.Effects = append(result.Effects, e.Kind())
			out.Printf("effect %s\n", e.Kind())
			if _, done := e.(download.CompletedEffect); done {
				completed++
			}

		case <-cancelTimer:
			cancelTimer = nil
			if _, downloading := current.(download.DownloadingState); downloading {
				result.Cancelled = true
				click()
			}
		}

		if _, idle := current.(download.IdleState); !idle {
			continue
		}
		switch {
		case !started:
			started = true
			click()
		case result.Cancelled && opts.Restart && !result.Restarted:
			result.Restarted = true
			click()
		case completed > 0, result.Cancelled && !opts.Restart:
			return finish(result, current)
		}
	}
}

func finish(result RunResult, s download.State) RunResult {
	result.FinalState = s.Kind()
	if ds, ok := s.(download.DownloadingState); ok {
		result.Percent = ds.Percent
	}
	return result
}

func printState(out *OutputFormatter, s download.State) {
	if ds, ok := s.(download.DownloadingState); ok {
		toast := ""
		if ds.ShowToast {
			toast = " (halfway)"
		}
		out.Printf("state %s %d%%%s\n", ds.Kind(), ds.Percent, toast)
		return
	}
	out.Printf("state %s\n", s.Kind())
}
