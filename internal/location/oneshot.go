package location

import (
	"context"
	"sync/atomic"
)

// oneShot is a single-assignment slot bridging platform callbacks to one
// waiting caller. The first of offer or cancel claims it; later arrivals are
// dropped.
type oneShot[T any] struct {
	claimed atomic.Bool
	ch      chan T
}

func newOneShot[T any]() *oneShot[T] {
	return &oneShot[T]{ch: make(chan T, 1)}
}

// offer stores v if the slot is unclaimed and reports whether it did.
func (s *oneShot[T]) offer(v T) bool {
	if !s.claimed.CompareAndSwap(false, true) {
		return false
	}
	s.ch <- v
	return true
}

// cancel claims the slot without a value.
func (s *oneShot[T]) cancel() bool {
	return s.claimed.CompareAndSwap(false, true)
}

// wait blocks until a value is offered or ctx is done. When ctx ends after a
// value already claimed the slot, the value wins and err is nil.
func (s *oneShot[T]) wait(ctx context.Context) (T, error) {
	select {
	case v := <-s.ch:
		return v, nil
	case <-ctx.Done():
		if s.cancel() {
			var zero T
			return zero, ctx.Err()
		}
		return <-s.ch, nil
	}
}
