// Package asynchook moves hook delivery off the caller's goroutine. Several
// memocache hooks fire while a store lock is held, so a slow sink (network
// logger, metrics push) should sit behind this queue.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{CallHitEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	fib := memocache.Memoize1(fib, memocache.Options{Hooks: hooks})
//
// Events are dropped, never blocked on, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/memocache"
)

type Hooks struct {
	inner   memocache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ memocache.Hooks = (*Hooks)(nil)

func New(inner memocache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// Close raced the check above
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) CallHit(store string) { h.try(func() { h.inner.CallHit(store) }) }
func (h *Hooks) CallComputed(store string, d time.Duration) {
	h.try(func() { h.inner.CallComputed(store, d) })
}
func (h *Hooks) PropertyComputed(p, reason string) {
	h.try(func() { h.inner.PropertyComputed(p, reason) })
}
func (h *Hooks) PersistLoaded(p, path string) { h.try(func() { h.inner.PersistLoaded(p, path) }) }
func (h *Hooks) PersistFailed(p, path, op string, err error) {
	h.try(func() { h.inner.PersistFailed(p, path, op, err) })
}
func (h *Hooks) ThreadScopeMissing(store string) {
	h.try(func() { h.inner.ThreadScopeMissing(store) })
}
