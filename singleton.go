package memocache

import (
	"context"
	"sync"
	"sync/atomic"
)

// Singleton holds the one instance of T. The first successful Get wins:
// later calls return that instance and never run their own constructor,
// whatever it would have built. Use MemoizeNew1 for an instance per
// argument instead.
//
// A failed construction is not retained; the next Get tries again.
type Singleton[T any] struct {
	mu   sync.Mutex
	done atomic.Bool
	v    T
}

func (s *Singleton[T]) Get(ctx context.Context, ctor func(context.Context) (T, error)) (T, error) {
	if s.done.Load() {
		return s.v, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done.Load() {
		return s.v, nil
	}
	v, err := ctor(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.v = v
	s.done.Store(true)
	return v, nil
}

// Loaded reports whether the instance exists.
func (s *Singleton[T]) Loaded() bool { return s.done.Load() }
