package memocache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// processStores is the process-wide namespace of ScopeProcess stores.
var processStores namespace

type threadScope struct {
	id     string
	stores namespace
}

type threadScopeKey struct{}

// WithThreadScope returns a context carrying a fresh, private set of
// ScopeThread stores. Give each worker goroutine its own thread scope;
// anything memoized with ScopeThread through it is invisible to other
// scopes and released with the context.
func WithThreadScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, threadScopeKey{}, &threadScope{id: uuid.NewString()})
}

// ThreadScopeID returns the id of the thread scope on ctx, if any.
func ThreadScopeID(ctx context.Context) (string, bool) {
	ts, ok := ctx.Value(threadScopeKey{}).(*threadScope)
	if !ok {
		return "", false
	}
	return ts.id, true
}

// OpenStore returns the store named opts.Name in opts.Scope, creating it on
// first use. For ScopeProcess the lock strategy is fixed by whichever caller
// creates the store. A ScopeThread open without a thread scope on ctx
// returns an empty store that nothing else will ever see.
func OpenStore(ctx context.Context, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	switch opts.Scope {
	case ScopeProcess:
		return processStores.open(opts.Name, func() *Store {
			opts.Logger.Debug("process store created", Fields{"store": opts.Name, "lockPool": opts.LockPool})
			return newProcessStore(opts.Name, opts.LockPool)
		}), nil
	case ScopeThread:
		ts, ok := ctx.Value(threadScopeKey{}).(*threadScope)
		if !ok {
			opts.Logger.Debug("no thread scope on context; result will not be retained", Fields{"store": opts.Name})
			opts.Hooks.ThreadScopeMissing(opts.Name)
			return newThreadStore(opts.Name), nil
		}
		return ts.stores.open(opts.Name, func() *Store { return newThreadStore(opts.Name) }), nil
	}
	return nil, fmt.Errorf("%w %q", ErrInvalidScope, opts.Scope)
}
