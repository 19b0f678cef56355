package ristretto

import (
	"context"
	"testing"
)

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}

func TestRistrettoProvider(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	ok, err := p.Set(ctx, "k", []byte("value"))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !ok {
		t.Skip("ristretto admission refused the first write")
	}
	b, hit, err := p.Get(ctx, "k")
	if err != nil || !hit || string(b) != "value" {
		t.Fatalf("Get: %q hit=%v err=%v", b, hit, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	p.c.Wait()
	if _, hit, _ := p.Get(ctx, "k"); hit {
		t.Fatalf("entry survived Del")
	}
}
