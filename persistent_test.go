package memocache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	c "github.com/unkn0wn-root/memocache/codec"
	"github.com/unkn0wn-root/memocache/contenthash"
	"github.com/unkn0wn-root/memocache/internal/wire"
	pr "github.com/unkn0wn-root/memocache/provider"
	"github.com/unkn0wn-root/memocache/provider/file"
)

type memProvider struct {
	mu      sync.Mutex
	m       map[string][]byte
	reject  bool
	failGet error
	gets    int
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.failGet != nil {
		return nil, false, p.failGet
	}
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	p.m[key] = append([]byte(nil), value...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

type dataset struct {
	PropertyCache
	Size int
	Seed string
}

func squares(calls *int) func(context.Context, *dataset) ([]int, error) {
	return func(_ context.Context, d *dataset) ([]int, error) {
		*calls++
		out := make([]int, d.Size)
		for i := range out {
			out[i] = i * i
		}
		return out, nil
	}
}

func TestPersistentPropertyWritesAndReloads(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var calls int
	p, err := NewPersistentProperty("squares", squares(&calls), PersistOptions[[]int]{
		Template: filepath.Join(dir, "squares-{Size}.cbor"),
	}, Field[*dataset]("Size"))
	require.NoError(t, err)

	d := &dataset{Size: 3}
	v, err := p.Get(ctx, d)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 4}, v)

	path := filepath.Join(dir, "squares-3.cbor")
	got, err := p.Path(ctx, d)
	require.NoError(t, err)
	require.Equal(t, path, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	rec, err := wire.DecodeRecord(raw)
	require.NoError(t, err)
	require.Equal(t, contenthash.Sum([]any{3}), rec.SnapshotKey)
	payload, err := c.MustCBOR[[]int](true).Decode(rec.Payload)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 4}, payload)

	// a fresh host loads the file instead of computing
	fresh := &dataset{Size: 3}
	has, err := p.Has(ctx, fresh)
	require.NoError(t, err)
	require.True(t, has)
	v, err = p.Get(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 4}, v)
	require.Equal(t, 1, calls)

	// a different value gets its own file
	d.Size = 2
	v, _ = p.Get(ctx, d)
	require.Equal(t, []int{0, 1}, v)
	require.Equal(t, 2, calls)
	require.FileExists(t, filepath.Join(dir, "squares-2.cbor"))

	// back to the first value: the stale memory slot defers to the file
	d.Size = 3
	_, _ = p.Get(ctx, d)
	require.Equal(t, 2, calls)
}

func TestPersistentPropertySetAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var calls int
	p, err := NewPersistentProperty("squares", squares(&calls), PersistOptions[[]int]{
		Template: "sq.bin",
		Provider: file.New(file.Config{Root: dir}),
		Codec:    c.MustCBOR[[]int](false),
	}, Field[*dataset]("Size"))
	require.NoError(t, err)

	d := &dataset{Size: 2}
	require.NoError(t, p.Set(ctx, d, []int{9, 9}))
	require.FileExists(t, filepath.Join(dir, "sq.bin"))

	v, err := p.Get(ctx, &dataset{Size: 2})
	require.NoError(t, err)
	require.Equal(t, []int{9, 9}, v, "overwritten value must be served to new hosts")
	require.Zero(t, calls)

	// the template has no placeholder, so a new size is stale and overwrites
	v, _ = p.Get(ctx, &dataset{Size: 1})
	require.Equal(t, []int{0}, v)
	require.Equal(t, 1, calls)

	require.NoError(t, p.Delete(ctx, d))
	require.NoFileExists(t, filepath.Join(dir, "sq.bin"))
	has, _ := p.Has(ctx, d)
	require.False(t, has)

	v, _ = p.Get(ctx, d)
	require.Equal(t, []int{0, 1}, v)
	require.Equal(t, 2, calls)
}

func TestPersistentPropertyCorruptRecordSelfHeals(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	var calls int
	p, err := NewPersistentProperty("squares", squares(&calls), PersistOptions[[]int]{
		Template: "sq/{Size}",
		Provider: mp,
	}, Field[*dataset]("Size"))
	require.NoError(t, err)
	p.WithHooks(h)

	mp.m["sq/2"] = []byte("not a record")
	v, err := p.Get(ctx, &dataset{Size: 2})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, v)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, h.count("failed:decode"))

	rec, err := wire.DecodeRecord(mp.m["sq/2"])
	require.NoError(t, err, "corrupt record must be replaced by a valid one")
	require.Equal(t, contenthash.Sum([]any{2}), rec.SnapshotKey)

	_, _ = p.Get(ctx, &dataset{Size: 2})
	require.Equal(t, 1, h.count("loaded"))
}

func TestPersistentPropertyProviderErrors(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	var calls int
	p, err := NewPersistentProperty("squares", squares(&calls), PersistOptions[[]int]{
		Template: "sq/{Size}",
		Provider: mp,
	}, Field[*dataset]("Size"))
	require.NoError(t, err)
	p.WithHooks(h)

	boom := errors.New("backend down")
	mp.failGet = boom
	_, err = p.Get(ctx, &dataset{Size: 1})
	var pe *PersistError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "load", pe.Op)
	require.Equal(t, "sq/1", pe.Path)
	require.ErrorIs(t, err, boom)
	require.Zero(t, calls)

	mp.failGet = nil
	mp.reject = true
	v, err := p.Get(ctx, &dataset{Size: 1})
	require.NoError(t, err, "a refused write is reported, not returned")
	require.Equal(t, []int{0}, v)
	require.Equal(t, 1, h.count("failed:save"))
	require.ErrorIs(t, h.errs[len(h.errs)-1], ErrRejected)
	require.False(t, mp.has("sq/1"))
}

func TestPersistentPropertyTemplates(t *testing.T) {
	fn := func(context.Context, *dataset) (int, error) { return 0, nil }
	deps := []Dep[*dataset]{Field[*dataset]("Size"), Field[*dataset]("Seed")}

	_, err := NewPersistentProperty("p", fn, PersistOptions[int]{Template: "x/{Nope}"}, deps...)
	require.ErrorIs(t, err, ErrUnknownPlaceholder)

	for _, bad := range []string{"", "x/{Size", "x/Size}"} {
		_, err = NewPersistentProperty("p", fn, PersistOptions[int]{Template: bad}, deps...)
		require.Error(t, err, bad)
	}

	p, err := NewPersistentProperty("p", fn, PersistOptions[int]{
		Template: "{{literal}}/{Seed}-{Size}.bin",
		Provider: newMemProvider(),
	}, deps...)
	require.NoError(t, err)
	path, err := p.Path(context.Background(), &dataset{Size: 4, Seed: "ab"})
	require.NoError(t, err)
	require.Equal(t, "{literal}/ab-4.bin", path)
}
