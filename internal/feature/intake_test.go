package feature

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/udflow/internal/testutil"
)

func TestParseIntakePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    IntakePolicy
		wantErr bool
	}{
		{"", IntakeQueue, false},
		{"queue", IntakeQueue, false},
		{"latest", IntakeLatest, false},
		{"drop", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIntakePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.in != "" {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
	assert.Equal(t, "IntakePolicy(7)", IntakePolicy(7).String())
}

func TestQueueIntake_FIFO(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := newIntake[string](ctx, IntakeQueue)
	for _, s := range []string{"a", "b", "c"} {
		require.True(t, in.offer(s))
	}

	assert.Equal(t, "a", testutil.Receive(t, in.events()))
	assert.Equal(t, "b", testutil.Receive(t, in.events()))
	assert.Equal(t, "c", testutil.Receive(t, in.events()))
}

func TestQueueIntake_ClosedOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := newQueueIntake[int]()
	go q.pump(ctx)

	require.True(t, q.offer(1))
	cancel()

	assert.True(t, testutil.Closed(q.events()))
	assert.False(t, q.offer(2), "offer after close is rejected")
	assert.Equal(t, 0, q.len())
}

func TestQueueIntake_TryDequeueEmpty(t *testing.T) {
	q := newQueueIntake[int]()

	_, ok := q.tryDequeue()
	assert.False(t, ok)

	q.offer(4)
	q.offer(5)
	assert.Equal(t, 2, q.len())

	v, ok := q.tryDequeue()
	require.True(t, ok)
	assert.Equal(t, 4, v)
	assert.Equal(t, 1, q.len())
}

func TestLatestIntake_OneSlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := newIntake[int](ctx, IntakeLatest)

	assert.True(t, in.offer(1))
	assert.False(t, in.offer(2))

	assert.Equal(t, 1, testutil.Receive(t, in.events()))
	assert.True(t, in.offer(3), "slot is free again once read")

	cancel()
	assert.False(t, in.offer(4), "offer after cancel is rejected")
	assert.Equal(t, 3, testutil.Receive(t, in.events()))
	testutil.NoReceive(t, in.events(), 10*time.Millisecond)
}
