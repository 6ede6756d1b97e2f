package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestForwardsItemsInOrder(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := make(chan int, 3)
	ht := NewHolisticTimeout(fc, src, time.Minute)

	src <- 1
	src <- 2

	ev, ok := ht.Next(context.Background())
	require.True(t, ok)
	assert.False(t, ev.DeadlineElapsed)
	assert.Equal(t, 1, ev.Item)

	ev, ok = ht.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, ev.Item)
}

func TestDeadlineElapsesExactlyOnce(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := make(chan int, 1)
	ht := NewHolisticTimeout(fc, src, time.Minute)

	fc.Step(time.Minute)

	ev, ok := ht.Next(context.Background())
	require.True(t, ok)
	assert.True(t, ev.DeadlineElapsed)

	// The elapsed deadline was reported; the source keeps being polled and
	// later items still come through.
	src <- 7
	ev, ok = ht.Next(context.Background())
	require.True(t, ok)
	assert.False(t, ev.DeadlineElapsed)
	assert.Equal(t, 7, ev.Item)

	// Forwarding an item re-arms the report, so the already-expired deadline
	// is reported once more, but only once per intervening item.
	ev, ok = ht.Next(context.Background())
	require.True(t, ok)
	assert.True(t, ev.DeadlineElapsed)

	close(src)
	_, ok = ht.Next(context.Background())
	assert.False(t, ok)
}

func TestNoElapseBeforeDeadline(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := make(chan string, 2)
	ht := NewHolisticTimeout(fc, src, time.Minute)

	fc.Step(59 * time.Second)
	src <- "a"
	close(src)

	ev, ok := ht.Next(context.Background())
	require.True(t, ok)
	assert.False(t, ev.DeadlineElapsed)
	assert.Equal(t, "a", ev.Item)

	_, ok = ht.Next(context.Background())
	assert.False(t, ok)
}

func TestNoElapseAfterSourceCompletes(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := make(chan int, 1)
	ht := NewHolisticTimeout(fc, src, time.Minute)

	src <- 42
	close(src)
	fc.Step(2 * time.Minute)

	// The buffered item is still delivered, then the sequence ends with no
	// deadline report even though the deadline has long passed.
	ev, ok := ht.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 42, ev.Item)

	_, ok = ht.Next(context.Background())
	assert.False(t, ok)

	// Terminal state is sticky.
	_, ok = ht.Next(context.Background())
	assert.False(t, ok)
}

func TestCancelledContextEndsSequence(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := make(chan int)
	ht := NewHolisticTimeout(fc, src, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := ht.Next(ctx)
	assert.False(t, ok)
}

func TestItemWinsOverPendingDeadline(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := make(chan int, 1)
	ht := NewHolisticTimeout(fc, src, time.Minute)

	fc.Step(time.Hour)
	src <- 9

	// An item that is already available is always preferred over reporting
	// the deadline.
	ev, ok := ht.Next(context.Background())
	require.True(t, ok)
	assert.False(t, ev.DeadlineElapsed)
	assert.Equal(t, 9, ev.Item)
}
