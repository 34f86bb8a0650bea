package infra

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	opt := client.Options()
	if opt.ReadTimeout != redisIOTimeout || opt.WriteTimeout != redisIOTimeout || opt.DialTimeout != redisDialTimeout {
		t.Fatalf("unexpected default timeouts: dial=%s read=%s write=%s", opt.DialTimeout, opt.ReadTimeout, opt.WriteTimeout)
	}
	if !opt.ContextTimeoutEnabled {
		t.Fatalf("expected context deadlines to be honored")
	}

	tuned, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0?read_timeout=5s")
	if err != nil {
		t.Fatalf("connect with options: %v", err)
	}
	defer tuned.Close()
	if got := tuned.Options().ReadTimeout; got != 5*time.Second {
		t.Fatalf("read_timeout from url not kept, got %s", got)
	}

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "::not a url"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestNewPostgresPoolValidatesURL(t *testing.T) {
	if _, err := NewPostgresPool(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewPostgresPool(context.Background(), "postgres://%zz"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestSchemaEmbedded(t *testing.T) {
	if len(schema) == 0 {
		t.Fatalf("schema.sql not embedded")
	}
}
