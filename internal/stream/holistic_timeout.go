// Package stream provides the holistic timeout combinator: a single
// wall-clock deadline applied to an entire event sequence, as opposed to a
// per-item timeout that is renewed after every event. A steady trickle of
// events arriving just under the duration apart never trips a per-item
// timeout, but the holistic deadline still elapses exactly at the point it
// was fixed to when the combinator was built.
package stream

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// TimedEvent is either an item forwarded from the underlying source or a
// report that the deadline has elapsed, never both.
type TimedEvent[T any] struct {
	Item            T
	DeadlineElapsed bool
}

// HolisticTimeout wraps a channel-backed source so the whole sequence shares
// one deadline. The deadline is computed once, at construction, and is never
// extended. It is not safe for concurrent use; a single caller drives it by
// calling Next.
type HolisticTimeout[T any] struct {
	source <-chan T
	timer  clock.Timer

	// armed records whether the deadline still needs reporting. It starts
	// true and is re-armed by every forwarded item, so an elapsed deadline
	// is reported at most once between consecutive items.
	armed   bool
	expired bool
	done    bool
}

// NewHolisticTimeout builds a combinator over source with a deadline of
// now + d. The clock is injected so tests can drive the deadline without
// real waiting.
func NewHolisticTimeout[T any](clk clock.Clock, source <-chan T, d time.Duration) *HolisticTimeout[T] {
	return &HolisticTimeout[T]{
		source: source,
		timer:  clk.NewTimer(d),
		armed:  true,
	}
}

// Next blocks until the source yields an item, the deadline elapses, or ctx
// is cancelled. It returns false when the sequence has ended: the source
// closed, or ctx was cancelled. An item that is already available always
// wins over a pending deadline report, and no deadline is ever reported
// once the source has closed. After a deadline report the source keeps
// being polled; ending the sequence on timeout is the caller's decision.
func (h *HolisticTimeout[T]) Next(ctx context.Context) (TimedEvent[T], bool) {
	for {
		if h.done {
			return TimedEvent[T]{}, false
		}

		select {
		case v, ok := <-h.source:
			return h.forward(v, ok)
		default:
		}

		if h.expired {
			if h.armed {
				h.armed = false
				return TimedEvent[T]{DeadlineElapsed: true}, true
			}
			select {
			case v, ok := <-h.source:
				return h.forward(v, ok)
			case <-ctx.Done():
				h.done = true
				return TimedEvent[T]{}, false
			}
		}

		select {
		case v, ok := <-h.source:
			return h.forward(v, ok)
		case <-h.timer.C():
			h.expired = true
		case <-ctx.Done():
			h.done = true
			return TimedEvent[T]{}, false
		}
	}
}

func (h *HolisticTimeout[T]) forward(v T, ok bool) (TimedEvent[T], bool) {
	if !ok {
		h.done = true
		return TimedEvent[T]{}, false
	}
	h.armed = true
	return TimedEvent[T]{Item: v}, true
}
