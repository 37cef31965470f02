// Package download is a feature simulating a cancelable download.
//
// A click on Idle starts a download that ticks from 0 to 100%; a click while
// downloading cancels it. Reaching 100% emits the Completed effect and
// returns to Idle. Crossing 50% emits the Halfway effect.
//
// Job control follows the job package: the Start and Cancel actions become
// job commands, every Idle status becomes an Idle result, and the running
// job's ticks are merged in. Ticks from a cancelled job are discarded, so no
// Downloading result ever follows the Idle produced by a cancel.
package download

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/udflow/internal/feature"
	"github.com/roach88/udflow/internal/job"
	"github.com/roach88/udflow/internal/stream"
)

// Name is the feature name used in logs and the journal.
const Name = "download"

// Pipeline is a running download feature.
type Pipeline = feature.Pipeline[State, Event, Action, Result, Effect]

// Downloader owns the download interactors and counts launched jobs.
type Downloader struct {
	interval time.Duration
	logger   *slog.Logger
	launches atomic.Int64
}

// NewDownloader creates a downloader ticking every interval.
// A nil logger uses slog.Default().
func NewDownloader(interval time.Duration, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		interval: interval,
		logger:   logger.With("feature", Name),
	}
}

// Launches returns the number of download jobs started so far.
func (d *Downloader) Launches() int64 {
	return d.launches.Load()
}

// Definition returns the feature definition backed by d.
func (d *Downloader) Definition() feature.Definition[State, Event, Action, Result, Effect] {
	return feature.Definition[State, Event, Action, Result, Effect]{
		Name:           Name,
		Initial:        IdleState{},
		EventToAction:  EventToAction,
		ActionToResult: d.ActionToResult,
		HandleResult:   Reduce,
		Equal:          func(a, b State) bool { return a == b },
	}
}

// New starts a download feature in ctx.
func New(ctx context.Context, d *Downloader, opts ...feature.Option) (*Pipeline, error) {
	return feature.New(ctx, d.Definition(), opts...)
}

// EventToAction maps a click on Idle to Start and a click while downloading
// to Cancel.
func EventToAction(ctx context.Context, events <-chan Event) <-chan Action {
	return stream.ConcatMap(ctx, events, func(e Event) []Action {
		click, ok := e.(ClickEvent)
		if !ok {
			return nil
		}
		if _, downloading := click.State.(DownloadingState); downloading {
			return []Action{ActionCancel}
		}
		return []Action{ActionStart}
	})
}

func toCommand(a Action) job.Command {
	if a == ActionCancel {
		return job.Cancel
	}
	return job.Start
}

// tagged is a result produced by a job.
type tagged struct {
	job    *job.Job
	result Result
	// last marks the final result of a job that ran to completion.
	last bool
}

// ActionToResult runs the job control loop over actions and merges the
// running job's results with the Idle results of the control stream.
//
// The output closes once actions has closed and the current job has
// finished, or when ctx ends.
func (d *Downloader) ActionToResult(ctx context.Context, actions <-chan Action) <-chan Result {
	out := make(chan Result)
	jobResults := make(chan tagged)

	create := func() *job.Job {
		n := d.launches.Add(1)
		d.logger.Debug("download job launching", "launch", n)
		self := make(chan *job.Job, 1)
		j := job.Launch(ctx, func(jctx context.Context) {
			d.download(jctx, <-self, jobResults)
		})
		self <- j
		return j
	}

	statuses := job.Control(ctx, stream.Map(ctx, actions, toCommand), create)

	go func() {
		defer close(out)

		var current *job.Job
		for {
			var finished <-chan struct{}
			if statuses == nil {
				if current == nil {
					return
				}
				finished = current.Done()
			}

			select {
			case <-ctx.Done():
				return

			case status, ok := <-statuses:
				if !ok {
					statuses = nil
					continue
				}
				current = status.Job()
				if status.IsIdle() && !stream.Send[Result](ctx, out, IdleResult{}) {
					return
				}

			case t := <-jobResults:
				if t.job.Cancelled() {
					d.logger.Debug("stale result dropped", "result", t.result.Kind())
					continue
				}
				if t.last {
					// The job must be inactive before the client can see
					// Idle, so that the next Start launches a new job.
					select {
					case <-t.job.Done():
					case <-ctx.Done():
						return
					}
				}
				if !stream.Send(ctx, out, t.result) {
					return
				}

			case <-finished:
				current = nil
			}
		}
	}()

	return out
}

// download is the job body: one Downloading result per tick, then Completed
// and Idle once 100% is reached. A cancelled job sends neither.
func (d *Downloader) download(ctx context.Context, self *job.Job, results chan<- tagged) {
	for p := range Progress(ctx, d.interval) {
		r := DownloadingResult{Percent: p, ShowToast: p == HalfwayPercent}
		if !stream.Send(ctx, results, tagged{job: self, result: r}) {
			return
		}
	}
	if ctx.Err() != nil {
		d.logger.Debug("download job stopped before completion")
		return
	}
	if !stream.Send(ctx, results, tagged{job: self, result: CompletedResult{}}) {
		return
	}
	stream.Send(ctx, results, tagged{job: self, result: IdleResult{}, last: true})
}

// Reduce folds result into previous.
//
//	Idle        -> Idle
//	Downloading -> Downloading; the toast flag is only copied onto an
//	               already Downloading state. A raised flag emits Halfway.
//	Completed   -> previous, emitting Completed
//
// An effect that cannot be delivered does not change the fold: the next
// state is the same whether or not anyone received it. The pipeline logs
// the failure and still journals the effect.
func Reduce(ctx context.Context, emit feature.Emitter[Effect], previous State, result Result) State {
	switch r := result.(type) {
	case IdleResult:
		return IdleState{}

	case DownloadingResult:
		if r.ShowToast {
			_ = emit.EmitEffect(ctx, HalfwayEffect{})
		}
		if _, downloading := previous.(DownloadingState); downloading {
			return DownloadingState{Percent: r.Percent, ShowToast: r.ShowToast}
		}
		return DownloadingState{Percent: r.Percent}

	case CompletedResult:
		_ = emit.EmitEffect(ctx, CompletedEffect{})
		return previous
	}
	return previous
}

