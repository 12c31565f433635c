package async

import (
	"context"
	"sync"
)

// Signal is a one-shot broadcast point. Every channel handed out by Signal
// receives exactly one value from the next NotifyValue, or is closed by the
// next Notify. It is safe for concurrent use.
type Signal[T any] struct {
	mu      sync.Mutex
	waiters []chan T
}

// Signal registers a new waiter.
func (s *Signal[T]) Signal() <-chan T {
	ch := make(chan T, 1)
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	return ch
}

// NotifyValue hands value to every registered waiter and reports how many
// there were.
func (s *Signal[T]) NotifyValue(value T) int {
	waiters := s.take()
	for _, ch := range waiters {
		ch <- value
		close(ch)
	}
	return len(waiters)
}

// Notify releases every registered waiter with the zero value.
func (s *Signal[T]) Notify() bool {
	waiters := s.take()
	for _, ch := range waiters {
		close(ch)
	}
	return len(waiters) > 0
}

// Wait blocks until the next notification or until ctx is done.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	ch := s.Signal()
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Signal[T]) take() []chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	waiters := s.waiters
	s.waiters = nil
	return waiters
}
