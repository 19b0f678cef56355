// Package contenthash derives a stable 64-bit key from arbitrary Go values by
// structural canonicalization.
//
// Rules, applied recursively:
//   - log handles (*zap.Logger, *log.Logger, *slog.Logger, *logrus.Logger,
//     *logrus.Entry) reduce to their name, never to their internal state;
//   - structs become a mapping of all their fields, unexported ones
//     included, tagged with "___name" and "___classname";
//   - maps are order independent, slices and arrays are order sensitive;
//     string and []byte are scalars;
//   - the runtime type name is always folded into the result, so equal
//     shapes of different types do not collide.
//
// Two values with the same Sum are treated as the same cache key.
package contenthash

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"log"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/memocache/internal/util"
)

const (
	NameTag      = "___name"
	ClassNameTag = "___classname"
	ObjDictTag   = "___objdict"
)

// Named values contribute Name() as their "___name" tag.
type Named interface {
	Name() string
}

const (
	formNil byte = iota
	formScalar
	formMap
	formSeq
	formPtr
	formCycle
)

type visit struct {
	ptr uintptr
	len int
	typ reflect.Type
}

type hasher struct {
	active map[visit]struct{}
}

// Sum returns the structural hash of v.
func Sum(v any) uint64 {
	h := hasher{active: make(map[visit]struct{})}
	return h.sum(reflect.ValueOf(v))
}

// SumArgs hashes a positional argument list. It equals Sum([]any(args)).
func SumArgs(args ...any) uint64 {
	if args == nil {
		args = []any{}
	}
	return Sum(args)
}

func (h *hasher) sum(v reflect.Value) uint64 {
	if !v.IsValid() {
		return seal("nil", formNil, nil)
	}
	t := v.Type()
	typename := t.String()

	if name, ok := handleName(v); ok {
		return seal(typename, formScalar, stringBytes(name))
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return seal(typename, formNil, nil)
		}
		return h.sum(v.Elem())

	case reflect.Pointer:
		if v.IsNil() {
			return seal(typename, formNil, nil)
		}
		if b, ok := opaque(v.Elem()); ok {
			return seal(typename, formScalar, b)
		}
		key := visit{ptr: v.Pointer(), typ: t}
		if _, seen := h.active[key]; seen {
			return seal(typename, formCycle, nil)
		}
		h.active[key] = struct{}{}
		defer delete(h.active, key)
		return seal(typename, formPtr, u64(h.sum(v.Elem())))

	case reflect.Struct:
		if b, ok := opaque(v); ok {
			return seal(typename, formScalar, b)
		}
		return seal(typename, formMap, sortedPairs(h.attributes(v)))

	case reflect.Map:
		if v.IsNil() {
			return seal(typename, formNil, nil)
		}
		key := visit{ptr: v.Pointer(), typ: t}
		if _, seen := h.active[key]; seen {
			return seal(typename, formCycle, nil)
		}
		h.active[key] = struct{}{}
		defer delete(h.active, key)

		ps := make([]uint64, 0, v.Len()+1)
		it := v.MapRange()
		for it.Next() {
			ps = append(ps, pair(h.sum(it.Key()), h.sum(it.Value())))
		}
		if n, ok := asNamed(v); ok {
			tag := []uint64{
				pair(Sum(NameTag), Sum(n)),
				pair(Sum(ClassNameTag), Sum(typename)),
			}
			objdict := seal("map[string]interface {}", formMap, sortedPairs(tag))
			ps = append(ps, pair(Sum(ObjDictTag), objdict))
		}
		return seal(typename, formMap, sortedPairs(ps))

	case reflect.Slice:
		if v.IsNil() {
			return seal(typename, formNil, nil)
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return seal(typename, formScalar, lenPrefixed(v.Bytes()))
		}
		key := visit{ptr: v.Pointer(), len: v.Len(), typ: t}
		if _, seen := h.active[key]; seen {
			return seal(typename, formCycle, nil)
		}
		h.active[key] = struct{}{}
		defer delete(h.active, key)
		return seal(typename, formSeq, h.seq(v))

	case reflect.Array:
		return seal(typename, formSeq, h.seq(v))

	case reflect.String:
		return seal(typename, formScalar, stringBytes(v.String()))

	case reflect.Bool:
		if v.Bool() {
			return seal(typename, formScalar, []byte{1})
		}
		return seal(typename, formScalar, []byte{0})

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return seal(typename, formScalar, u64(uint64(v.Int())))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return seal(typename, formScalar, u64(v.Uint()))

	case reflect.Float32, reflect.Float64:
		return seal(typename, formScalar, u64(floatBits(v.Float())))

	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		return seal(typename, formScalar, append(u64(floatBits(real(c))), u64(floatBits(imag(c)))...))

	case reflect.Func:
		if v.IsNil() {
			return seal(typename, formNil, nil)
		}
		if !v.CanInterface() {
			return seal(typename, formScalar, u64(uint64(v.Pointer())))
		}
		return seal(typename, formScalar, stringBytes(util.FuncName(v.Interface())))

	case reflect.Chan, reflect.UnsafePointer:
		if v.IsNil() {
			return seal(typename, formNil, nil)
		}
		return seal(typename, formScalar, u64(uint64(v.Pointer())))
	}

	if !v.CanInterface() {
		return seal(typename, formScalar, stringBytes(v.Kind().String()))
	}
	return seal(typename, formScalar, stringBytes(fmt.Sprint(v.Interface())))
}

// attributes flattens a struct into field-name/value pair hashes, plus the
// name and class-name tags. Unexported fields count like exported ones.
func (h *hasher) attributes(v reflect.Value) []uint64 {
	t := v.Type()
	if !v.CanAddr() && v.CanInterface() {
		c := reflect.New(t).Elem()
		c.Set(v)
		v = c
	}
	ps := make([]uint64, 0, t.NumField()+2)
	for i := 0; i < t.NumField(); i++ {
		ps = append(ps, pair(Sum(t.Field(i).Name), h.sum(field(v, i))))
	}
	var name any
	if n, ok := asNamed(v); ok {
		name = n
	}
	ps = append(ps,
		pair(Sum(NameTag), Sum(name)),
		pair(Sum(ClassNameTag), Sum(util.TypeName(t))),
	)
	return ps
}

// field returns field i of struct v. When v is addressable the result is
// readable through Interface even if the field is unexported.
func field(v reflect.Value, i int) reflect.Value {
	fv := v.Field(i)
	if fv.CanInterface() || !fv.CanAddr() {
		return fv
	}
	return reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
}

func (h *hasher) seq(v reflect.Value) []byte {
	out := make([]byte, 0, 8+8*v.Len())
	out = append(out, u64(uint64(v.Len()))...)
	for i := 0; i < v.Len(); i++ {
		out = append(out, u64(h.sum(v.Index(i)))...)
	}
	return out
}

func handleName(v reflect.Value) (string, bool) {
	if v.Kind() != reflect.Pointer || !v.CanInterface() {
		return "", false
	}
	switch l := v.Interface().(type) {
	case *zap.Logger:
		if l == nil {
			return "", true
		}
		return l.Name(), true
	case *log.Logger:
		if l == nil {
			return "", true
		}
		return l.Prefix(), true
	case *slog.Logger, *logrus.Logger, *logrus.Entry:
		return "", true
	}
	return "", false
}

func asNamed(v reflect.Value) (string, bool) {
	if !v.CanInterface() {
		return "", false
	}
	if n, ok := v.Interface().(Named); ok {
		return n.Name(), true
	}
	return "", false
}

// opaque covers structs with no exported fields (time.Time, big.Int, ...)
// that marshal themselves: their binary or textual form stands in for the
// attribute mapping. Others fall back to attributes.
func opaque(v reflect.Value) ([]byte, bool) {
	if v.Kind() != reflect.Struct || !v.CanInterface() || exported(v.Type()) > 0 {
		return nil, false
	}
	cands := []any{v.Interface()}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	cands = append(cands, p.Interface())
	for _, c := range cands {
		if m, ok := c.(encoding.BinaryMarshaler); ok {
			if b, err := m.MarshalBinary(); err == nil {
				return lenPrefixed(b), true
			}
		}
		if s, ok := c.(fmt.Stringer); ok {
			return stringBytes(s.String()), true
		}
	}
	return nil, false
}

func exported(t reflect.Type) int {
	n := 0
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			n++
		}
	}
	return n
}

func seal(typename string, form byte, payload []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(stringBytes(typename))
	_, _ = d.Write([]byte{form})
	_, _ = d.Write(payload)
	return d.Sum64()
}

func pair(k, v uint64) uint64 {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], k)
	binary.BigEndian.PutUint64(b[8:], v)
	return xxhash.Sum64(b[:])
}

func sortedPairs(ps []uint64) []byte {
	slices.Sort(ps)
	out := make([]byte, 0, 8+8*len(ps))
	out = append(out, u64(uint64(len(ps)))...)
	for _, p := range ps {
		out = append(out, u64(p)...)
	}
	return out
}

func u64(x uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], x)
	return b[:]
}

func stringBytes(s string) []byte { return lenPrefixed([]byte(s)) }

func lenPrefixed(b []byte) []byte {
	out := make([]byte, 0, 8+len(b))
	out = append(out, u64(uint64(len(b)))...)
	return append(out, b...)
}

func floatBits(f float64) uint64 {
	switch {
	case f == 0:
		return 0 // +0 and -0
	case math.IsNaN(f):
		return 0x7FF8000000000001
	}
	return math.Float64bits(f)
}
