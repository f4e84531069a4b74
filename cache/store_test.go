package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory Backend for tests. Patterns support only a
// trailing "*", which is all the store uses.
type memBackend struct {
	data    map[string]string
	scores  map[string]map[string]float64
	getErr  error
	setErr  error
	keysErr error
}

func newMemBackend() *memBackend {
	return &memBackend{
		data:   map[string]string{},
		scores: map[string]map[string]float64{},
	}
}

func (m *memBackend) Exists(ctx context.Context, key string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	_, ok := m.data[key]
	return ok, nil
}

func (m *memBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memBackend) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memBackend) Del(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			n++
		}
	}
	return n, nil
}

func (m *memBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	if m.keysErr != nil {
		return nil, m.keysErr
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *memBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	set := m.scores[key]
	if set == nil {
		set = map[string]float64{}
		m.scores[key] = set
	}
	set[member] = score
	return nil
}

func (m *memBackend) ZRangeByScore(ctx context.Context, key string, min float64) ([]string, error) {
	var members []string
	for member, score := range m.scores[key] {
		if score >= min {
			members = append(members, member)
		}
	}
	return members, nil
}

func (m *memBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWithCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	store := NewStoreWithBackend(backend, nil)

	calls := 0
	fetch := func(ctx context.Context) (payload, error) {
		calls++
		return payload{Name: "acme", Count: 7}, nil
	}

	got, err := WithCache(ctx, store, "k1", time.Minute, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "acme" || got.Count != 7 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}

	got, err = WithCache(ctx, store, "k1", time.Minute, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Count != 7 {
		t.Fatalf("unexpected cached result: %+v", got)
	}
	if calls != 1 {
		t.Fatalf("second call should hit the cache, fetches = %d", calls)
	}
}

func TestWithCacheFetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store := NewStoreWithBackend(newMemBackend(), nil)

	wantErr := errors.New("boom")
	_, err := WithCache(ctx, store, "k1", time.Minute, func(ctx context.Context) (payload, error) {
		return payload{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if store.Exists(ctx, "k1") {
		t.Fatal("failed fetch must not populate the cache")
	}
}

func TestWithCacheReadErrorFallsThroughToFetch(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.data["k1"] = `{"name":"stale","count":1}`
	backend.getErr = errors.New("redis down")
	store := NewStoreWithBackend(backend, nil)

	got, err := WithCache(ctx, store, "k1", time.Minute, func(ctx context.Context) (payload, error) {
		return payload{Name: "fresh", Count: 2}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "fresh" {
		t.Fatalf("expected fetched value on backend error, got %+v", got)
	}
}

func TestWithCacheWriteErrorSwallowed(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.setErr = errors.New("redis down")
	store := NewStoreWithBackend(backend, nil)

	got, err := WithCache(ctx, store, "k1", time.Minute, func(ctx context.Context) (payload, error) {
		return payload{Name: "acme", Count: 3}, nil
	})
	if err != nil {
		t.Fatalf("write failure must not surface: %v", err)
	}
	if got.Count != 3 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestWithCacheCorruptEntryTreatedAsMiss(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.data["k1"] = "not json"
	store := NewStoreWithBackend(backend, nil)

	got, err := WithCache(ctx, store, "k1", time.Minute, func(ctx context.Context) (payload, error) {
		return payload{Name: "recomputed"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "recomputed" {
		t.Fatalf("corrupt entry should fall through to fetch, got %+v", got)
	}
}

func TestDeletePattern(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	store := NewStoreWithBackend(backend, nil)

	store.Set(ctx, "analytics:abc:summary", payload{}, 0)
	store.Set(ctx, "analytics:abc:monthly", payload{}, 0)
	store.Set(ctx, "analytics:abc123:summary", payload{}, 0)

	n := store.DeletePattern(ctx, "analytics:abc:*")
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if !store.Exists(ctx, "analytics:abc123:summary") {
		t.Fatal("pattern must not bleed into the longer company id")
	}
	if store.Exists(ctx, "analytics:abc:summary") {
		t.Fatal("matching key survived deletion")
	}
}

func TestDeletePatternNoMatches(t *testing.T) {
	store := NewStoreWithBackend(newMemBackend(), nil)
	if n := store.DeletePattern(context.Background(), "analytics:none:*"); n != 0 {
		t.Fatalf("expected 0 deletions, got %d", n)
	}
}
