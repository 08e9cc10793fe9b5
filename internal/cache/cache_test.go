package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemory("t")

	if err := c.Set(ctx, "k1", "v1", time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	v, err := c.Get(ctx, "k1")
	if err != nil || v != "v1" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if _, err := c.Get(ctx, "k1"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemory_MissIsNotFound(t *testing.T) {
	t.Parallel()
	c := NewMemory("")
	_, err := c.Get(context.Background(), "nada")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_TTLExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemory("")

	if err := c.Set(ctx, "efimera", "x", 10*time.Millisecond); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "efimera"); !IsNotFound(err) {
		t.Fatalf("expected expiry miss, got %v", err)
	}
}

func TestMemory_PrefixIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := NewMemory("a")
	b := NewMemory("b")

	if err := a.Set(ctx, "k", "de-a", 0); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	if _, err := b.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("prefixes must not collide, got %v", err)
	}
}

func TestNew_MemoryDriver(t *testing.T) {
	t.Parallel()
	c, err := New(Config{Driver: "memory", Prefix: "x"})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer c.Close()
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping err: %v", err)
	}
}

func TestNew_EmptyDriverDefaultsToMemory(t *testing.T) {
	t.Parallel()
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer c.Close()
	if err := c.Set(context.Background(), "k", "v", 0); err != nil {
		t.Fatalf("Set err: %v", err)
	}
}
