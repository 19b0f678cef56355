package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestKeyPrefixAndUnreachableServer(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	p, err := New(Config{Client: client, Prefix: "memo:", CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(context.Background())

	if got := p.key("a/b"); got != "memo:a/b" {
		t.Fatalf("key=%q", got)
	}
	if _, ok, err := p.Get(context.Background(), "a/b"); err == nil || ok {
		t.Fatalf("expected transport error, got ok=%v err=%v", ok, err)
	}
}
