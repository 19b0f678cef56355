package memocache

import (
	"context"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/memocache/codec"
	"github.com/unkn0wn-root/memocache/internal/wire"
	"github.com/unkn0wn-root/memocache/provider"
	"github.com/unkn0wn-root/memocache/provider/file"
)

// PersistOptions configure where and how a persisted property is stored.
type PersistOptions[T any] struct {
	// Template is the provider key, with {dep} placeholders replaced by
	// fmt.Sprint of the named dependency value. Use {{ and }} for literal
	// braces. Example: "cache/report-{Year}.cbor".
	Template string
	Provider provider.Provider // if nil, provider/file rooted at the working directory
	Codec    codec.Codec[T]    // if nil, codec.Default[T]()
}

type segment struct {
	lit string
	dep int // index into deps, or -1 for a literal
}

type persistence[T any] struct {
	tmpl  string
	segs  []segment
	prov  provider.Provider
	codec codec.Codec[T]
	snaps codec.CBOR[[]any]
}

// PersistentProperty is a Property whose slot is also kept in a durable
// provider, so a value computed by one host (or one run) is loaded instead
// of recomputed by the next.
//
// On a memory miss the record at the current path is loaded and checked
// against the current dependency values. A record that cannot be decoded
// is deleted and treated as absent. Every computed or Set value is written
// through to the provider.
type PersistentProperty[H Host, T any] struct {
	*Property[H, T]
}

// NewPersistentProperty declares a property persisted per po.
func NewPersistentProperty[H Host, T any](name string, fn func(ctx context.Context, h H) (T, error), po PersistOptions[T], deps ...Dep[H]) (*PersistentProperty[H, T], error) {
	p, err := NewProperty(name, fn, deps...)
	if err != nil {
		return nil, err
	}
	segs, err := parseTemplate(po.Template, deps)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", name, err)
	}
	p.persist = &persistence[T]{
		tmpl:  po.Template,
		segs:  segs,
		prov:  coalesce[provider.Provider](po.Provider, file.New(file.Config{})),
		codec: coalesce[codec.Codec[T]](po.Codec, codec.Default[T]()),
		snaps: codec.MustCBOR[[]any](true),
	}
	return &PersistentProperty[H, T]{Property: p}, nil
}

// Path returns the provider key for the host's current dependency values.
func (p *PersistentProperty[H, T]) Path(ctx context.Context, h H) (string, error) {
	snap, err := p.snapshot(ctx, h)
	if err != nil {
		return "", err
	}
	return p.persist.path(snap), nil
}

// Has reports whether a value is held in memory or by the provider for the
// current dependency values, without loading or computing it.
func (p *PersistentProperty[H, T]) Has(ctx context.Context, h H) (bool, error) {
	ctx, err := enter(ctx, p.maxDepth, p.name)
	if err != nil {
		return false, err
	}
	snap, err := p.snapshot(ctx, h)
	if err != nil {
		return false, err
	}
	return p.full(ctx, h.propertyCache().open(), snap)
}

func parseTemplate[H any](tmpl string, deps []Dep[H]) ([]segment, error) {
	index := make(map[string]int, len(deps))
	for i, d := range deps {
		index[d.name] = i
	}

	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{lit: lit.String(), dep: -1})
			lit.Reset()
		}
	}
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && strings.HasPrefix(tmpl[i:], "{{"):
			lit.WriteByte('{')
			i++
		case c == '}' && strings.HasPrefix(tmpl[i:], "}}"):
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("memocache: unterminated placeholder in %q", tmpl)
			}
			name := tmpl[i+1 : i+end]
			dep, ok := index[name]
			if !ok {
				return nil, fmt.Errorf("%w {%s} in %q", ErrUnknownPlaceholder, name, tmpl)
			}
			flush()
			segs = append(segs, segment{dep: dep})
			i += end
		case c == '}':
			return nil, fmt.Errorf("memocache: unmatched '}' in %q", tmpl)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	if len(segs) == 0 {
		return nil, fmt.Errorf("memocache: empty path template")
	}
	return segs, nil
}

func (ps *persistence[T]) path(snap snapshot) string {
	var b strings.Builder
	for _, s := range ps.segs {
		if s.dep < 0 {
			b.WriteString(s.lit)
			continue
		}
		fmt.Fprint(&b, snap.values[s.dep])
	}
	return b.String()
}

func (p *Property[H, T]) load(ctx context.Context, snap snapshot) (slot, bool, error) {
	ps := p.persist
	path := ps.path(snap)
	b, ok, err := ps.prov.Get(ctx, path)
	if err != nil {
		p.hooks.PersistFailed(p.name, path, "load", err)
		return slot{}, false, &PersistError{Property: p.name, Op: "load", Path: path, Err: err}
	}
	if !ok {
		return slot{}, false, nil
	}

	rec, err := wire.DecodeRecord(b)
	var v T
	if err == nil {
		v, err = ps.codec.Decode(rec.Payload)
	}
	if err != nil {
		p.log.Warn("corrupt persisted record, removing", Fields{"property": p.name, "path": path, "err": err})
		p.hooks.PersistFailed(p.name, path, "decode", err)
		if derr := ps.prov.Del(ctx, path); derr != nil {
			p.log.Warn("remove corrupt record failed", Fields{"property": p.name, "path": path, "err": derr})
		}
		return slot{}, false, nil
	}
	p.hooks.PersistLoaded(p.name, path)
	p.log.Debug("persisted property loaded", Fields{"property": p.name, "path": path})
	return slot{snap: snapshot{key: rec.SnapshotKey}, value: v}, true, nil
}

func (p *Property[H, T]) save(ctx context.Context, sl slot) error {
	ps := p.persist
	path := ps.path(sl.snap)

	payload, err := ps.codec.Encode(valueAs[T](sl.value))
	if err != nil {
		p.hooks.PersistFailed(p.name, path, "encode", err)
		return &PersistError{Property: p.name, Op: "encode", Path: path, Err: err}
	}
	snapBytes, err := ps.snaps.Encode(sl.snap.values)
	if err != nil {
		// informational only; the key alone decides validity
		p.log.Debug("dependency snapshot not encodable", Fields{"property": p.name, "err": err})
		snapBytes = nil
	}

	rec := wire.EncodeRecord(wire.Record{SnapshotKey: sl.snap.key, Snapshot: snapBytes, Payload: payload})
	ok, err := ps.prov.Set(ctx, path, rec)
	if err != nil {
		p.hooks.PersistFailed(p.name, path, "save", err)
		return &PersistError{Property: p.name, Op: "save", Path: path, Err: err}
	}
	if !ok {
		p.log.Warn("provider rejected persisted record", Fields{"property": p.name, "path": path})
		p.hooks.PersistFailed(p.name, path, "save", ErrRejected)
	}
	return nil
}

func (p *Property[H, T]) remove(ctx context.Context, snap snapshot) error {
	path := p.persist.path(snap)
	if err := p.persist.prov.Del(ctx, path); err != nil {
		p.hooks.PersistFailed(p.name, path, "delete", err)
		return &PersistError{Property: p.name, Op: "delete", Path: path, Err: err}
	}
	return nil
}

func (p *Property[H, T]) exists(ctx context.Context, snap snapshot) (bool, error) {
	path := p.persist.path(snap)
	_, ok, err := p.persist.prov.Get(ctx, path)
	if err != nil {
		return false, &PersistError{Property: p.name, Op: "load", Path: path, Err: err}
	}
	return ok, nil
}
