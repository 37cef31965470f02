// Package job controls cancelable background work from a stream of
// Start/Cancel commands.
//
// The control stream is a scan: each Command is folded into the current
// Status on a single goroutine, so the Status slot is never shared.
//
//	Idle    + Start  -> Working(new job)
//	Working + Start  -> unchanged while the job is active, else Working(new job)
//	Working + Cancel -> job cancelled, Idle
//	Idle    + Cancel -> Idle
package job

import (
	"context"
	"sync/atomic"

	"github.com/roach88/udflow/internal/stream"
)

// Command drives the control stream.
type Command int

const (
	Start Command = iota
	Cancel
)

func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Job is a handle on one background goroutine with its own cancellation.
//
// Cancellation is cooperative: Cancel returns immediately and the goroutine
// stops once it next observes its context.
type Job struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

// Launch runs fn on a new goroutine under a child of ctx.
func Launch(ctx context.Context, fn func(ctx context.Context)) *Job {
	jctx, cancel := context.WithCancel(ctx)
	j := &Job{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(j.done)
		defer cancel()
		fn(jctx)
	}()
	return j
}

// Cancel requests the job to stop. Safe to call more than once.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
	j.cancel()
}

// Cancelled reports whether Cancel has been called.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// Active reports whether the job has neither finished nor been cancelled.
func (j *Job) Active() bool {
	if j.Cancelled() {
		return false
	}
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// Done is closed when the job's goroutine returns.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Factory creates and starts a new job.
type Factory func() *Job

// Status is the controller's view of the background work: Idle, or Working
// on a job. The zero value is Idle.
type Status struct {
	job *Job
}

// Idle is the status with no job.
var Idle = Status{}

// Working returns the status for a running job.
func Working(j *Job) Status {
	return Status{job: j}
}

// Job returns the job of a Working status, or nil when Idle.
func (s Status) Job() *Job {
	return s.job
}

// IsIdle reports whether s is Idle.
func (s Status) IsIdle() bool {
	return s.job == nil
}

func (s Status) Kind() string {
	if s.IsIdle() {
		return "idle"
	}
	return "working"
}

// Step applies one command to status. create is called only when a new job
// must be launched.
func Step(status Status, cmd Command, create Factory) Status {
	switch cmd {
	case Start:
		if status.IsIdle() || !status.job.Active() {
			return Working(create())
		}
		return status
	case Cancel:
		if !status.IsIdle() {
			status.job.Cancel()
		}
		return Idle
	default:
		return status
	}
}

// Control scans commands into statuses. The returned stream yields Idle
// first, then one Status per command. It closes when commands closes or ctx
// ends.
func Control(ctx context.Context, commands <-chan Command, create Factory) <-chan Status {
	return stream.Scan(ctx, commands, Idle, func(status Status, cmd Command) Status {
		return Step(status, cmd, create)
	})
}
