package memocache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/unkn0wn-root/memocache/contenthash"
	"github.com/unkn0wn-root/memocache/internal/util"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// memoize returns the value stored under key in the store selected by opts,
// computing it at most once per store lifetime. Errors from compute are
// returned and not stored.
func memoize(ctx context.Context, opts Options, key uint64, compute func(ctx context.Context) (any, error)) (any, error) {
	opts = opts.withDefaults()
	if _, err := ParseScope(string(opts.Scope)); err != nil {
		return nil, err
	}
	ctx, err := enter(ctx, opts.MaxDepth, opts.Name)
	if err != nil {
		return nil, err
	}
	s, err := OpenStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	if v, ok := s.Get(key); ok {
		opts.Hooks.CallHit(opts.Name)
		return v, nil
	}

	var out any
	err = s.WithLock(ctx, key, func(ctx context.Context) error {
		// must check again, after the lock
		if v, ok := s.Get(key); ok {
			opts.Hooks.CallHit(opts.Name)
			out = v
			return nil
		}
		start := time.Now()
		v, err := compute(ctx)
		if err != nil {
			return err
		}
		s.Set(key, v)
		elapsed := time.Since(start)
		opts.Hooks.CallComputed(opts.Name, elapsed)
		opts.Logger.Debug("memoized call computed", Fields{"store": opts.Name, "key": key, "elapsed": elapsed})
		out = v
		return nil
	})
	return out, err
}

// Call invokes fn(args...) at most once per distinct argument list (as seen
// by contenthash) within the store selected by opts, and returns the shared
// result.
//
// fn may take a leading context.Context, which receives ctx and is not part
// of the key. If fn's last result is an error, a non-nil error is returned
// to the caller and not cached. The store name defaults to fn's name.
func Call[R any](ctx context.Context, opts Options, fn any, args ...any) (R, error) {
	var zero R
	if _, err := ParseScope(string(coalesce(opts.Scope, ScopeProcess))); err != nil {
		return zero, err
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return zero, fmt.Errorf("%w: %T is not a function", ErrBadArguments, fn)
	}
	b, err := bind(fv.Type(), args)
	if err != nil {
		return zero, err
	}
	opts.Name = coalesce(opts.Name, util.FuncName(fn))

	v, err := memoize(ctx, opts, contenthash.Sum(b.key), func(ctx context.Context) (any, error) {
		return b.invoke(ctx, fv)
	})
	if err != nil {
		return zero, err
	}
	return resultAs[R](opts.Name, v)
}

// binding is an argument list matched against a function signature.
type binding struct {
	withCtx  bool
	variadic bool
	in       []reflect.Value
	key      []any // bound arguments; the variadic tail is a single slice
}

func bind(t reflect.Type, args []any) (binding, error) {
	b := binding{variadic: t.IsVariadic()}
	params := make([]reflect.Type, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		params = append(params, t.In(i))
	}
	if len(params) > 0 && params[0] == ctxType {
		b.withCtx = true
		params = params[1:]
	}

	fixed := len(params)
	if b.variadic {
		fixed--
		if len(args) < fixed {
			return b, fmt.Errorf("%w: want at least %d arguments, got %d", ErrBadArguments, fixed, len(args))
		}
	} else if len(args) != fixed {
		return b, fmt.Errorf("%w: want %d arguments, got %d", ErrBadArguments, fixed, len(args))
	}

	for i := 0; i < fixed; i++ {
		v, err := argValue(params[i], args[i], i)
		if err != nil {
			return b, err
		}
		b.in = append(b.in, v)
	}
	if b.variadic {
		st := params[fixed]
		tail := reflect.MakeSlice(st, 0, len(args)-fixed)
		for i := fixed; i < len(args); i++ {
			v, err := argValue(st.Elem(), args[i], i)
			if err != nil {
				return b, err
			}
			tail = reflect.Append(tail, v)
		}
		b.in = append(b.in, tail)
	}

	b.key = make([]any, len(b.in))
	for i, v := range b.in {
		b.key[i] = v.Interface()
	}
	return b, nil
}

func argValue(t reflect.Type, arg any, pos int) (reflect.Value, error) {
	if arg == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: argument %d: nil for %s", ErrBadArguments, pos, t)
	}
	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%w: argument %d: %s is not assignable to %s", ErrBadArguments, pos, v.Type(), t)
	}
	return v, nil
}

func (b binding) invoke(ctx context.Context, fv reflect.Value) (any, error) {
	in := b.in
	if b.withCtx {
		in = append([]reflect.Value{reflect.ValueOf(&ctx).Elem()}, in...)
	}
	var out []reflect.Value
	if b.variadic {
		out = fv.CallSlice(in)
	} else {
		out = fv.Call(in)
	}

	t := fv.Type()
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return nil, err
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	vals := make([]any, len(out))
	for i, o := range out {
		vals[i] = o.Interface()
	}
	return vals, nil
}

func resultAs[R any](store string, v any) (R, error) {
	var zero R
	if v == nil {
		return zero, nil
	}
	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%w: store %q holds %T, not %T", ErrBadArguments, store, v, zero)
	}
	return r, nil
}

// Memoize0 wraps fn so it runs once per store. Options.Name defaults to
// fn's name.
func Memoize0[R any](fn func(context.Context) (R, error), opts Options) func(context.Context) (R, error) {
	opts.Name = coalesce(opts.Name, util.FuncName(fn))
	return func(ctx context.Context) (R, error) {
		v, err := memoize(ctx, opts, contenthash.SumArgs(), func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
		if err != nil {
			var zero R
			return zero, err
		}
		return resultAs[R](opts.Name, v)
	}
}

// Memoize1 wraps fn so it runs once per distinct argument.
// Keys match Call on the same function, so both share cached results.
func Memoize1[A, R any](fn func(context.Context, A) (R, error), opts Options) func(context.Context, A) (R, error) {
	opts.Name = coalesce(opts.Name, util.FuncName(fn))
	return func(ctx context.Context, a A) (R, error) {
		v, err := memoize(ctx, opts, contenthash.SumArgs(a), func(ctx context.Context) (any, error) {
			return fn(ctx, a)
		})
		if err != nil {
			var zero R
			return zero, err
		}
		return resultAs[R](opts.Name, v)
	}
}

func Memoize2[A, B, R any](fn func(context.Context, A, B) (R, error), opts Options) func(context.Context, A, B) (R, error) {
	opts.Name = coalesce(opts.Name, util.FuncName(fn))
	return func(ctx context.Context, a A, b B) (R, error) {
		v, err := memoize(ctx, opts, contenthash.SumArgs(a, b), func(ctx context.Context) (any, error) {
			return fn(ctx, a, b)
		})
		if err != nil {
			var zero R
			return zero, err
		}
		return resultAs[R](opts.Name, v)
	}
}

func Memoize3[A, B, C, R any](fn func(context.Context, A, B, C) (R, error), opts Options) func(context.Context, A, B, C) (R, error) {
	opts.Name = coalesce(opts.Name, util.FuncName(fn))
	return func(ctx context.Context, a A, b B, c C) (R, error) {
		v, err := memoize(ctx, opts, contenthash.SumArgs(a, b, c), func(ctx context.Context) (any, error) {
			return fn(ctx, a, b, c)
		})
		if err != nil {
			var zero R
			return zero, err
		}
		return resultAs[R](opts.Name, v)
	}
}

// MemoizeNew1 memoizes a constructor: repeated construction with equal
// arguments returns the same instance. Options.Name defaults to the name of
// T (pointer stripped). The key binds a leading nil placeholder for the
// instance being built, so a constructor and a plain function over the same
// arguments never share entries.
func MemoizeNew1[A, T any](ctor func(A) T, opts Options) func(context.Context, A) (T, error) {
	opts.Name = coalesce(opts.Name, util.TypeName(reflect.TypeFor[T]()))
	return func(ctx context.Context, a A) (T, error) {
		v, err := memoize(ctx, opts, contenthash.SumArgs(nil, a), func(context.Context) (any, error) {
			return ctor(a), nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return resultAs[T](opts.Name, v)
	}
}

func MemoizeNew2[A, B, T any](ctor func(A, B) T, opts Options) func(context.Context, A, B) (T, error) {
	opts.Name = coalesce(opts.Name, util.TypeName(reflect.TypeFor[T]()))
	return func(ctx context.Context, a A, b B) (T, error) {
		v, err := memoize(ctx, opts, contenthash.SumArgs(nil, a, b), func(context.Context) (any, error) {
			return ctor(a, b), nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return resultAs[T](opts.Name, v)
	}
}
