package download

import (
	"context"
	"time"

	"github.com/roach88/udflow/internal/stream"
)

const (
	// MaxPercent is the last progress value of a download.
	MaxPercent = 100

	// HalfwayPercent is the progress value that raises the toast flag.
	HalfwayPercent = 50

	// DefaultInterval is the delay between progress ticks.
	DefaultInterval = 100 * time.Millisecond
)

// Progress emits 0 through MaxPercent, waiting interval before each value.
// The channel closes after MaxPercent, or earlier when ctx ends. Cancellation
// is observed between ticks.
func Progress(ctx context.Context, interval time.Duration) <-chan int {
	out := make(chan int)
	go func() {
		defer close(out)
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for p := 0; p <= MaxPercent; p++ {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if !stream.Send(ctx, out, p) {
				return
			}
			timer.Reset(interval)
		}
	}()
	return out
}
