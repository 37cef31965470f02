package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMap(t *testing.T) {
	ctx := testContext(t)
	out := Map(ctx, Of(ctx, 1, 2, 3), func(v int) int { return v * 10 })
	assert.Equal(t, []int{10, 20, 30}, Collect(ctx, out))
}

func TestConcatMap_PreservesOrder(t *testing.T) {
	ctx := testContext(t)
	out := ConcatMap(ctx, Of(ctx, 1, 2, 3), func(v int) []int {
		if v == 2 {
			return nil
		}
		return []int{v, v}
	})
	assert.Equal(t, []int{1, 1, 3, 3}, Collect(ctx, out))
}

func TestScan_EmitsInitialFirst(t *testing.T) {
	ctx := testContext(t)
	out := Scan(ctx, Of(ctx, 1, 2, 3), 0, func(acc, v int) int { return acc + v })
	assert.Equal(t, []int{0, 1, 3, 6}, Collect(ctx, out))
}

func TestScan_EmptyInput(t *testing.T) {
	ctx := testContext(t)
	out := Scan(ctx, Of[int](ctx), 7, func(acc, v int) int { return acc + v })
	assert.Equal(t, []int{7}, Collect(ctx, out))
}

func TestCancelClosesOutputs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan int)
	out := Map(ctx, in, func(v int) int { return v })

	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "output should close after cancel")
	case <-time.After(time.Second):
		t.Fatal("output did not close after cancel")
	}
}

func TestSend_ReturnsFalseWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Send(ctx, make(chan int), 1))
}
