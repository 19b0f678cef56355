package memocache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: several are invoked while
// a store lock is held.
type Hooks interface {
	// A memoized call was answered from its store.
	CallHit(store string)

	// A memoized call ran the underlying function and stored the result.
	CallComputed(store string, elapsed time.Duration)

	// A property was (re)computed.
	// reason ∈ {"empty", "stale"}
	PropertyComputed(property, reason string)

	// A persisted property slot was loaded from its provider.
	PersistLoaded(property, path string)

	// A provider operation for a persisted property failed or was refused.
	// op ∈ {"load", "decode", "encode", "save", "delete"}
	PersistFailed(property, path, op string, err error)

	// A thread-scoped call ran without a thread scope on its context, so
	// its result was not retained.
	ThreadScopeMissing(store string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CallHit(string)                             {}
func (NopHooks) CallComputed(string, time.Duration)         {}
func (NopHooks) PropertyComputed(string, string)            {}
func (NopHooks) PersistLoaded(string, string)               {}
func (NopHooks) PersistFailed(string, string, string, error) {}
func (NopHooks) ThreadScopeMissing(string)                  {}
