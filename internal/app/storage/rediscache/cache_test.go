package rediscache

import (
	"context"
	"testing"
)

func TestNilCacheIsAlwaysMiss(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	var dest map[string]int
	hit, err := cache.GetJSON(ctx, Key("summary", "user-1"), &dest)
	if err != nil {
		t.Fatalf("GetJSON on nil cache: %v", err)
	}
	if hit {
		t.Fatal("nil cache must miss")
	}

	if err := cache.SetJSON(ctx, Key("summary", "user-1"), map[string]int{"a": 1}); err != nil {
		t.Fatalf("SetJSON on nil cache: %v", err)
	}
	if err := cache.Delete(ctx, Key("summary", "user-1")); err != nil {
		t.Fatalf("Delete on nil cache: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close on nil cache: %v", err)
	}
}

func TestKeyNamespacing(t *testing.T) {
	got := Key("summary", "user-1", "2025-06-02")
	want := "proteinlens:summary:user-1:2025-06-02"
	if got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
}
