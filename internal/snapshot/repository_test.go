package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-hub/migrations" // registers embedded migrations
)

func setupTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "hub.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func strPtr(s string) *string { return &s }

func TestRepository_LoadEmpty(t *testing.T) {
	repo := setupTestDB(t)

	snap, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap != nil {
		t.Errorf("Load() = %+v, want nil", snap)
	}
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	fetched := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	want := &cache.Snapshot{
		Entities: []entity.Enriched{
			{EntityID: "light.kitchen", Name: "Kitchen", Domain: "light", DeviceType: "light", RoomName: strPtr("Kitchen"), ProcessedBy: entity.ProcessedFull},
			{EntityID: "sensor.porch", Name: "Porch", Domain: "sensor", DeviceType: "temperature", State: "21.5"},
		},
		FetchedAt: fetched,
		Tier:      "full",
		Rejected:  2,
	}

	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !got.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, fetched)
	}
	if got.Tier != "full" || got.Rejected != 2 {
		t.Errorf("Tier/Rejected = %q/%d, want full/2", got.Tier, got.Rejected)
	}
	if len(got.Entities) != 2 || got.Entities[0].RoomName == nil || *got.Entities[0].RoomName != "Kitchen" {
		t.Errorf("Entities = %+v", got.Entities)
	}
	if got.Entities[1].RoomName != nil {
		t.Error("null room should stay null")
	}
}

func TestRepository_SaveReplaces(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	first := &cache.Snapshot{Entities: []entity.Enriched{{EntityID: "light.a"}}, FetchedAt: time.Now(), Tier: "full"}
	second := &cache.Snapshot{Entities: []entity.Enriched{}, FetchedAt: time.Now(), Tier: "legacy_fallback"}

	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save(first) error = %v", err)
	}
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("Save(second) error = %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Tier != "legacy_fallback" || len(got.Entities) != 0 {
		t.Errorf("Load() = tier %q with %d entities, want the second snapshot", got.Tier, len(got.Entities))
	}
}

func TestRepository_Clear(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	if err := repo.Save(ctx, &cache.Snapshot{FetchedAt: time.Now(), Tier: "full"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got, _ := repo.Load(ctx); got != nil {
		t.Errorf("Load() after Clear() = %+v, want nil", got)
	}
}

func TestRepository_SeedsManager(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	saved := &cache.Snapshot{
		Entities:  []entity.Enriched{{EntityID: "light.kitchen", Domain: "light"}},
		FetchedAt: time.Now().Add(-time.Hour),
		Tier:      "full",
	}
	if err := repo.Save(ctx, saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	m := cache.New(nil, cache.Options{Store: repo, MaxAge: time.Minute})
	seeded, err := m.Seed(ctx)
	if err != nil || !seeded {
		t.Fatalf("Seed() = %v, %v", seeded, err)
	}
	if res := m.GetEnhancedEntities(cache.Filters{}); len(res.Entities) != 1 || !res.Stale {
		t.Errorf("seeded read = %d entities stale %v, want 1 stale", len(res.Entities), res.Stale)
	}
}
