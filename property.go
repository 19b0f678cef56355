package memocache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/memocache/contenthash"
)

// PropertyCache holds the cached property values of one host. Embed it in
// the host struct and use the host by pointer:
//
//	type Report struct {
//		memocache.PropertyCache
//		Rows []Row
//	}
//
// The zero value is ready to use. Copying a PropertyCache after first use
// shares nothing with the original.
type PropertyCache struct {
	// LockPool bounds the number of locks guarding this host's properties.
	// 0 => one lock per property, released when the property is cleared.
	// With a pool, two goroutines computing nested properties that map to
	// the same locks in opposite order can deadlock; leave it 0 when
	// properties of one host are read concurrently and depend on each other.
	LockPool int

	mu    sync.Mutex
	store atomic.Pointer[Store]
}

func (c *PropertyCache) propertyCache() *PropertyCache { return c }

func (c *PropertyCache) open() *Store {
	if s := c.store.Load(); s != nil {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.store.Load(); s != nil {
		return s
	}
	s := newProcessStore("property_cache", c.LockPool)
	c.store.Store(s)
	return s
}

// Host is implemented by pointers to structs that embed PropertyCache.
type Host interface {
	propertyCache() *PropertyCache
}

// Dep is one dependency of a property: a named value read from the host.
// The property is recomputed whenever the content hash of its dependency
// values changes.
type Dep[H any] struct {
	name  string
	value func(ctx context.Context, h H) (any, error)
	err   error
}

func (d Dep[H]) Name() string { return d.name }

// DepFunc declares a dependency computed by fn.
func DepFunc[H any](name string, fn func(ctx context.Context, h H) (any, error)) Dep[H] {
	return Dep[H]{name: name, value: fn}
}

// Field declares a dependency on the exported field or zero-argument method
// name of H. The method may return (V) or (V, error). A name that H does not
// have is reported by NewProperty.
func Field[H any](name string) Dep[H] {
	t := reflect.TypeFor[H]()
	d := Dep[H]{name: name}

	if m, ok := t.MethodByName(name); ok {
		mt := m.Type // receiver is In(0)
		n := mt.NumOut()
		if mt.NumIn() != 1 || n == 0 || n > 2 || (n == 2 && mt.Out(1) != errType) {
			d.err = fmt.Errorf("%w: %s.%s must take no arguments and return a value", ErrUnknownDependency, t, name)
			return d
		}
		d.value = func(_ context.Context, h H) (any, error) {
			out := reflect.ValueOf(h).MethodByName(name).Call(nil)
			if n == 2 {
				if err, _ := out[1].Interface().(error); err != nil {
					return nil, err
				}
			}
			return out[0].Interface(), nil
		}
		return d
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		if f, ok := st.FieldByName(name); ok && f.IsExported() {
			idx := f.Index
			d.value = func(_ context.Context, h H) (any, error) {
				v := reflect.ValueOf(h)
				if v.Kind() == reflect.Pointer {
					if v.IsNil() {
						return nil, fmt.Errorf("memocache: read %s of nil %s", name, t)
					}
					v = v.Elem()
				}
				return v.FieldByIndex(idx).Interface(), nil
			}
			return d
		}
	}

	d.err = fmt.Errorf("%w: %s has no exported field or method %q", ErrUnknownDependency, t, name)
	return d
}

// snapshot is the state of a property's dependencies at one point in time.
// Two snapshots are equal when their keys are.
type snapshot struct {
	key    uint64
	values []any // nil when loaded from a persisted record
}

type slot struct {
	snap  snapshot
	value any
}

// Property is a value derived from a host of type H and cached in the
// host's PropertyCache until one of its dependencies changes.
//
// Only one value is kept per host: when dependencies change the next Get
// recomputes and replaces it. Use Memoize for a value per argument.
type Property[H Host, T any] struct {
	name     string
	key      uint64
	fn       func(ctx context.Context, h H) (T, error)
	deps     []Dep[H]
	log      Logger
	hooks    Hooks
	maxDepth int

	persist *persistence[T]
}

// NewProperty declares a property computed by fn from the given dependencies.
// Names must be unique among the properties of one host type.
func NewProperty[H Host, T any](name string, fn func(ctx context.Context, h H) (T, error), deps ...Dep[H]) (*Property[H, T], error) {
	if fn == nil {
		return nil, fmt.Errorf("memocache: property %s: nil function", name)
	}
	for _, d := range deps {
		if d.err != nil {
			return nil, fmt.Errorf("property %s: %w", name, d.err)
		}
	}
	return &Property[H, T]{
		name:     name,
		key:      contenthash.Sum(name),
		fn:       fn,
		deps:     deps,
		log:      NopLogger{},
		hooks:    NopHooks{},
		maxDepth: DefaultMaxDepth,
	}, nil
}

// MustProperty is NewProperty for package-level declarations. It panics on error.
func MustProperty[H Host, T any](name string, fn func(ctx context.Context, h H) (T, error), deps ...Dep[H]) *Property[H, T] {
	p, err := NewProperty(name, fn, deps...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Property[H, T]) WithLogger(l Logger) *Property[H, T] {
	p.log = coalesce[Logger](l, NopLogger{})
	return p
}

func (p *Property[H, T]) WithHooks(h Hooks) *Property[H, T] {
	p.hooks = coalesce[Hooks](h, NopHooks{})
	return p
}

func (p *Property[H, T]) WithMaxDepth(n int) *Property[H, T] {
	p.maxDepth = coalesce(n, DefaultMaxDepth)
	return p
}

func (p *Property[H, T]) Name() string { return p.name }

// Dep declares a dependency on this property, so other properties are
// recomputed whenever its value changes.
func (p *Property[H, T]) Dep() Dep[H] {
	return Dep[H]{name: p.name, value: func(ctx context.Context, h H) (any, error) {
		return p.Get(ctx, h)
	}}
}

// Get returns the cached value if its dependencies are unchanged, otherwise
// computes, stores and returns a new one. Errors from the computation are
// returned and nothing is stored.
func (p *Property[H, T]) Get(ctx context.Context, h H) (T, error) {
	var zero T
	ctx, err := enter(ctx, p.maxDepth, p.name)
	if err != nil {
		return zero, err
	}
	// Dependencies must be read before the lock: they can be properties
	// themselves.
	snap, err := p.snapshot(ctx, h)
	if err != nil {
		return zero, err
	}
	return p.get(ctx, h, snap)
}

func (p *Property[H, T]) get(ctx context.Context, h H, snap snapshot) (T, error) {
	var out T
	s := h.propertyCache().open()
	err := s.WithLock(ctx, p.key, func(ctx context.Context) error {
		sl, ok, err := p.retrieve(ctx, s, snap)
		if err != nil {
			return err
		}
		if ok && sl.snap.key == snap.key {
			out = valueAs[T](sl.value)
			return nil
		}

		reason := "empty"
		if ok {
			reason = "stale"
			p.log.Debug("property stale, recomputing", Fields{"property": p.name})
		}
		v, err := p.fn(ctx, h)
		if err != nil {
			return err
		}
		p.hooks.PropertyComputed(p.name, reason)
		out = v
		return p.insert(ctx, s, slot{snap: snap, value: v})
	})
	return out, err
}

// Set stores v as the value for the current dependency values.
func (p *Property[H, T]) Set(ctx context.Context, h H, v T) error {
	ctx, err := enter(ctx, p.maxDepth, p.name)
	if err != nil {
		return err
	}
	snap, err := p.snapshot(ctx, h)
	if err != nil {
		return err
	}
	s := h.propertyCache().open()
	return s.WithLock(ctx, p.key, func(ctx context.Context) error {
		return p.insert(ctx, s, slot{snap: snap, value: v})
	})
}

// Delete clears the cached value; the next Get recomputes.
func (p *Property[H, T]) Delete(ctx context.Context, h H) error {
	ctx, err := enter(ctx, p.maxDepth, p.name)
	if err != nil {
		return err
	}
	var snap snapshot
	if p.persist != nil {
		// the persisted path depends on the current values
		if snap, err = p.snapshot(ctx, h); err != nil {
			return err
		}
	}
	s := h.propertyCache().open()
	full, err := p.full(ctx, s, snap)
	if err != nil || !full {
		return err
	}
	return s.WithLock(ctx, p.key, func(ctx context.Context) error {
		return p.clear(ctx, s, snap)
	})
}

// Valid reports whether a cached value exists for the current dependency
// values.
func (p *Property[H, T]) Valid(ctx context.Context, h H) (bool, error) {
	ctx, err := enter(ctx, p.maxDepth, p.name)
	if err != nil {
		return false, err
	}
	snap, err := p.snapshot(ctx, h)
	if err != nil {
		return false, err
	}
	s := h.propertyCache().open()
	if full, err := p.full(ctx, s, snap); err != nil || !full {
		return false, err
	}
	valid := false
	err = s.WithLock(ctx, p.key, func(ctx context.Context) error {
		sl, ok, err := p.retrieve(ctx, s, snap)
		valid = ok && sl.snap.key == snap.key
		return err
	})
	return valid, err
}

func (p *Property[H, T]) snapshot(ctx context.Context, h H) (snapshot, error) {
	values := make([]any, len(p.deps))
	for i, d := range p.deps {
		v, err := d.value(ctx, h)
		if err != nil {
			return snapshot{}, fmt.Errorf("property %s: dependency %s: %w", p.name, d.name, err)
		}
		values[i] = v
	}
	return snapshot{key: contenthash.Sum(values), values: values}, nil
}

// retrieve, insert, clear and full are the slot operations; a persisted
// property backs them with its provider.

func (p *Property[H, T]) retrieve(ctx context.Context, s *Store, snap snapshot) (slot, bool, error) {
	mem, inMem := s.Get(p.key)
	if inMem && (p.persist == nil || mem.(slot).snap.key == snap.key) {
		return mem.(slot), true, nil
	}
	if p.persist == nil {
		return slot{}, false, nil
	}
	// a stale memory slot may still have a persisted record at the path
	// for the current values
	sl, ok, err := p.load(ctx, snap)
	if err != nil {
		return slot{}, false, err
	}
	if !ok {
		if inMem {
			return mem.(slot), true, nil
		}
		return slot{}, false, nil
	}
	s.Set(p.key, sl)
	return sl, true, nil
}

func (p *Property[H, T]) insert(ctx context.Context, s *Store, sl slot) error {
	s.Set(p.key, sl)
	if p.persist == nil {
		return nil
	}
	return p.save(ctx, sl)
}

func (p *Property[H, T]) clear(ctx context.Context, s *Store, snap snapshot) error {
	if p.persist != nil {
		if err := p.remove(ctx, snap); err != nil {
			return err
		}
	}
	s.Delete(p.key)
	return nil
}

func (p *Property[H, T]) full(ctx context.Context, s *Store, snap snapshot) (bool, error) {
	if s.Contains(p.key) {
		return true, nil
	}
	if p.persist == nil {
		return false, nil
	}
	return p.exists(ctx, snap)
}

func valueAs[T any](v any) T {
	t, _ := v.(T)
	return t
}

// isUnset reports whether v counts as "not provided": nil, or a nil
// pointer, map, slice, interface, func or chan.
func isUnset(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
