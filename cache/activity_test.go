package cache

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestActiveCompanyWindow(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	store := NewStoreWithBackend(backend, nil)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base.Add(-25 * time.Hour) }
	if err := store.TrackActiveCompany(ctx, "stale-co"); err != nil {
		t.Fatalf("track: %v", err)
	}

	store.now = func() time.Time { return base.Add(-time.Hour) }
	if err := store.TrackActiveCompany(ctx, "fresh-co"); err != nil {
		t.Fatalf("track: %v", err)
	}

	store.now = func() time.Time { return base }
	ids, err := store.ActiveCompanyIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "fresh-co" {
		t.Fatalf("expected only fresh-co inside the 24h window, got %v", ids)
	}
}

func TestTrackActiveCompanyRefreshesScore(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	store := NewStoreWithBackend(backend, nil)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base.Add(-30 * time.Hour) }
	_ = store.TrackActiveCompany(ctx, "co-1")

	// A later login moves the company back inside the window.
	store.now = func() time.Time { return base.Add(-time.Minute) }
	_ = store.TrackActiveCompany(ctx, "co-1")
	_ = store.TrackActiveCompany(ctx, "co-2")

	store.now = func() time.Time { return base }
	ids, err := store.ActiveCompanyIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "co-1" || ids[1] != "co-2" {
		t.Fatalf("expected both companies active, got %v", ids)
	}
}
