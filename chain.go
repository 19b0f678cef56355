package memocache

import (
	"context"
	"fmt"
)

// frame is one link of the evaluation chain carried by a context: either a
// nesting level (a memoized call or property read) or a held store lock.
// Go has no goroutine identity, so lock ownership and recursion depth travel
// with the context handed to the computation.
type frame struct {
	parent *frame
	depth  int
	lock   *lockID
}

type chainKey struct{}

func chainFrom(ctx context.Context) *frame {
	f, _ := ctx.Value(chainKey{}).(*frame)
	return f
}

// enter opens a nesting level for what and fails once max levels are open.
func enter(ctx context.Context, max int, what string) (context.Context, error) {
	parent := chainFrom(ctx)
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	if depth > max {
		return ctx, fmt.Errorf("%w (%d) while evaluating %s", ErrRecursion, max, what)
	}
	return context.WithValue(ctx, chainKey{}, &frame{parent: parent, depth: depth}), nil
}

func withHeld(ctx context.Context, id lockID) context.Context {
	parent := chainFrom(ctx)
	depth := 0
	if parent != nil {
		depth = parent.depth
	}
	return context.WithValue(ctx, chainKey{}, &frame{parent: parent, depth: depth, lock: &id})
}

// holds reports whether the chain on ctx already owns id.
func holds(ctx context.Context, id lockID) bool {
	for f := chainFrom(ctx); f != nil; f = f.parent {
		if f.lock != nil && *f.lock == id {
			return true
		}
	}
	return false
}
