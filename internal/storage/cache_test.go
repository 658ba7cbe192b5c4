package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Septimus4/Futurisys/internal/models"
)

func lookupFor(id uuid.UUID) *models.LedgerLookup {
	return &models.LedgerLookup{
		Entry:  models.LedgerEntry{ID: id},
		Result: &models.ResultRecord{RequestID: id, PredictedValue: 42},
	}
}

func TestLookupCache_GetSet(t *testing.T) {
	cache := NewLookupCache(10, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	if _, ok := cache.Get(ctx, id); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.Set(ctx, lookupFor(id))
	got, ok := cache.Get(ctx, id)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.Result.PredictedValue != 42 {
		t.Errorf("PredictedValue = %v, want 42", got.Result.PredictedValue)
	}

	cache.Delete(id)
	if _, ok := cache.Get(ctx, id); ok {
		t.Error("expected miss after Delete")
	}
}

func TestLookupCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewLookupCache(2, time.Minute)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	cache.Set(ctx, lookupFor(a))
	cache.Set(ctx, lookupFor(b))
	cache.Get(ctx, a) // a becomes most recent
	cache.Set(ctx, lookupFor(c))

	if _, ok := cache.Get(ctx, b); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := cache.Get(ctx, a); !ok {
		t.Error("expected a to survive eviction")
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
}

func TestLookupCache_Expiry(t *testing.T) {
	cache := NewLookupCache(10, time.Minute)
	ctx := context.Background()
	now := time.Date(2025, 8, 19, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	a, b := uuid.New(), uuid.New()
	cache.Set(ctx, lookupFor(a))
	cache.Set(ctx, lookupFor(b))

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(ctx, a); ok {
		t.Error("expected expired entry to miss")
	}
	if removed := cache.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", removed)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cache.Len())
	}
}

func TestLookupCache_ZeroCapacityDisables(t *testing.T) {
	cache := NewLookupCache(0, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	cache.Set(ctx, lookupFor(id))
	if _, ok := cache.Get(ctx, id); ok {
		t.Error("expected zero-capacity cache to never hit")
	}
	cache.Set(ctx, nil)
}

func TestLookupCache_Stats(t *testing.T) {
	cache := NewLookupCache(5, 10*time.Minute)
	cache.Set(context.Background(), lookupFor(uuid.New()))

	stats := cache.GetStats()
	if stats.Capacity != 5 || stats.Size != 1 || stats.TTL != 10*time.Minute {
		t.Errorf("unexpected stats: %+v", stats)
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", cache.Len())
	}
}
