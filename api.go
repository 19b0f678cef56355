package memocache

import "fmt"

// Scope selects which stores a memoized call shares.
type Scope string

const (
	// ScopeThread stores are private to a thread scope attached to the
	// context with WithThreadScope.
	ScopeThread Scope = "thread"
	// ScopeProcess stores are shared by every goroutine of the process.
	ScopeProcess Scope = "process"
)

const (
	DefaultLockPool = 100
	DefaultMaxDepth = 1000
)

// ParseScope validates s.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(s); sc {
	case ScopeThread, ScopeProcess:
		return sc, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidScope, s)
}

// Options tune memoized calls and stores. The zero value is valid.
type Options struct {
	Scope       Scope  // "" => ScopeProcess
	Name        string // store name; "" => derived from the function or constructed type
	LockPool    int    // process stores; 0 => DefaultLockPool. Ignored with PerKeyLocks
	PerKeyLocks bool   // one lock per key, dropped once the critical section leaves the key absent
	MaxDepth    int    // nested memoized calls / property reads; 0 => DefaultMaxDepth
	Logger      Logger // if nil, NopLogger is used
	Hooks       Hooks  // if nil, NopHooks is used
}

func (o Options) withDefaults() Options {
	o.Scope = coalesce(o.Scope, ScopeProcess)
	o.LockPool = coalesce(o.LockPool, DefaultLockPool)
	if o.PerKeyLocks {
		o.LockPool = 0
	}
	o.MaxDepth = coalesce(o.MaxDepth, DefaultMaxDepth)
	o.Logger = coalesce[Logger](o.Logger, NopLogger{})
	o.Hooks = coalesce[Hooks](o.Hooks, NopHooks{})
	return o
}
