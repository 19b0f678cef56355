package memocache

import "context"

// ConditionalProperty is a Property that is not computed until every
// dependency value is set. Until then Get reports ok=false and nothing is
// stored.
type ConditionalProperty[H Host, T any] struct {
	*Property[H, T]
}

// Conditional wraps p. p may be a persisted property's Property.
func Conditional[H Host, T any](p *Property[H, T]) *ConditionalProperty[H, T] {
	return &ConditionalProperty[H, T]{Property: p}
}

// Get returns (zero, false, nil) while any dependency is nil or a nil
// pointer, map, slice, interface, func or chan.
func (c *ConditionalProperty[H, T]) Get(ctx context.Context, h H) (T, bool, error) {
	var zero T
	ctx, err := enter(ctx, c.maxDepth, c.name)
	if err != nil {
		return zero, false, err
	}
	snap, err := c.snapshot(ctx, h)
	if err != nil {
		return zero, false, err
	}
	for _, v := range snap.values {
		if isUnset(v) {
			return zero, false, nil
		}
	}
	v, err := c.get(ctx, h, snap)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Dep reports an unset conditional property as nil, so properties that
// depend on it are themselves held back.
func (c *ConditionalProperty[H, T]) Dep() Dep[H] {
	return Dep[H]{name: c.name, value: func(ctx context.Context, h H) (any, error) {
		v, ok, err := c.Get(ctx, h)
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	}}
}
