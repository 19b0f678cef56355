package bigcache

import (
	"context"
	"testing"
)

func TestBigcacheProvider(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{Shards: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	if _, ok, err := p.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("miss expected: ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v1")); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v2")); err != nil || !ok {
		t.Fatalf("overwrite: ok=%v err=%v", ok, err)
	}
	b, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(b) != "v2" {
		t.Fatalf("Get: %q ok=%v err=%v", b, ok, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("entry survived Del")
	}
}
