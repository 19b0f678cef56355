package memocache

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"sync"
)

// Store is a named key/value map with a critical section per key.
// Keys are content hashes (see contenthash.Sum). Values never expire.
type Store struct {
	scope Scope
	name  string

	mu   sync.RWMutex
	data map[uint64]any

	locks locker
}

type lockID struct {
	store *Store
	slot  uint64
}

type locker interface {
	slot(key uint64) uint64
	acquire(key uint64)
	release(key uint64)
}

func newThreadStore(name string) *Store {
	return &Store{scope: ScopeThread, name: name, data: make(map[uint64]any), locks: noLocker{}}
}

// newProcessStore builds a store with a bounded pool of pool locks, or
// per-key locks when pool <= 0.
func newProcessStore(name string, pool int) *Store {
	s := &Store{scope: ScopeProcess, name: name, data: make(map[uint64]any)}
	if pool > 0 {
		s.locks = &poolLocker{mus: make([]sync.Mutex, pool)}
	} else {
		s.locks = &keyLocker{store: s, locks: make(map[uint64]*keyLock)}
	}
	return s
}

func (s *Store) Scope() Scope { return s.scope }
func (s *Store) Name() string { return s.name }

// Get returns (value, true) on hit. A stored nil is a hit.
func (s *Store) Get(key uint64) (any, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	return v, ok
}

// Lookup is Get for callers that expect presence: a miss is ErrNotFound.
func (s *Store) Lookup(key uint64) (any, error) {
	v, ok := s.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s store %q key %d", ErrNotFound, s.scope, s.name, key)
	}
	return v, nil
}

func (s *Store) Set(key uint64, v any) {
	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
}

func (s *Store) Delete(key uint64) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

func (s *Store) Contains(key uint64) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// All iterates over a point-in-time copy, so the loop body may modify s.
func (s *Store) All() iter.Seq2[uint64, any] {
	s.mu.RLock()
	cp := maps.Clone(s.data)
	s.mu.RUnlock()
	return maps.All(cp)
}

// WithLock runs fn inside the critical section for key. fn receives a
// context recording the held lock: nested WithLock calls made with it on the
// same lock run inline instead of deadlocking. Thread stores have no
// contention and run fn directly.
func (s *Store) WithLock(ctx context.Context, key uint64, fn func(ctx context.Context) error) error {
	if _, ok := s.locks.(noLocker); ok {
		return fn(ctx)
	}
	id := lockID{store: s, slot: s.locks.slot(key)}
	if holds(ctx, id) {
		return fn(ctx)
	}
	s.locks.acquire(key)
	defer s.locks.release(key)
	return fn(withHeld(ctx, id))
}

type noLocker struct{}

func (noLocker) slot(key uint64) uint64 { return key }
func (noLocker) acquire(uint64)         {}
func (noLocker) release(uint64)         {}

// poolLocker maps keys onto a fixed set of mutexes. Unrelated keys may share
// a mutex; that costs contention, never correctness.
type poolLocker struct {
	mus []sync.Mutex
}

func (p *poolLocker) slot(key uint64) uint64 { return key % uint64(len(p.mus)) }
func (p *poolLocker) acquire(key uint64)     { p.mus[p.slot(key)].Lock() }
func (p *poolLocker) release(key uint64)     { p.mus[p.slot(key)].Unlock() }

// keyLocker creates a mutex per key on demand. A mutex is dropped when its
// last holder leaves and the key is still absent from the store, so misses
// that stored nothing do not accumulate locks.
type keyLocker struct {
	store *Store

	mu    sync.Mutex
	locks map[uint64]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int // holders and waiters, guarded by keyLocker.mu
}

func (k *keyLocker) slot(key uint64) uint64 { return key }

func (k *keyLocker) acquire(key uint64) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
}

func (k *keyLocker) release(key uint64) {
	k.mu.Lock()
	l := k.locks[key]
	l.Unlock()
	l.refs--
	if l.refs == 0 && !k.store.Contains(key) {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

func (k *keyLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// namespace maps store names to stores, creating each exactly once.
type namespace struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

func (ns *namespace) open(name string, create func() *Store) *Store {
	ns.mu.RLock()
	s := ns.stores[name]
	ns.mu.RUnlock()
	if s != nil {
		return s
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	// must check again, another goroutine may have created it meanwhile
	if s = ns.stores[name]; s != nil {
		return s
	}
	if ns.stores == nil {
		ns.stores = make(map[string]*Store)
	}
	s = create()
	ns.stores[name] = s
	return s
}
