package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"search-agent/pkg/config"
)

func TestMemoryStore_Set_Get(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k1", map[string]string{"title": "Go"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v map[string]string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v["title"] != "Go" {
		t.Errorf("Get: got %v", v)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemoryStore()
	var v string
	if err := s.Get(context.Background(), "missing", &v); !errors.Is(err, ErrMiss) {
		t.Errorf("Get missing: got %v", err)
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	_ = s.Set(ctx, "k", "v", time.Minute)

	var v string
	if err := s.Get(ctx, "k", &v); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := s.Get(ctx, "k", &v); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after expiry: got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expired item should be evicted, len=%d", s.Len())
	}
}

func TestKey_StableAcrossArgOrder(t *testing.T) {
	a, err := Key("google_search", map[string]any{"query": "x", "page": 1})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Key("google_search", map[string]any{"page": 1, "query": "x"})
	c, _ := Key("google_scholar", map[string]any{"page": 1, "query": "x"})
	if a != b {
		t.Errorf("keys differ for same args: %s vs %s", a, b)
	}
	if a == c {
		t.Error("keys should differ across tools")
	}
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()
	if s, err := NewCache(ctx, config.CacheConfig{Type: "none"}); err != nil || s != nil {
		t.Errorf("none: got %v %v", s, err)
	}
	if s, err := NewCache(ctx, config.CacheConfig{Type: "memory"}); err != nil || s == nil {
		t.Errorf("memory: got %v %v", s, err)
	}
	if _, err := NewCache(ctx, config.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("unsupported type should error")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := NewCache(ctx, config.CacheConfig{Type: "redis", Addr: "127.0.0.1:1"}); err == nil {
		t.Error("unreachable redis should error")
	}
}
