package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
)

// currentSlot is the row the hub reads and writes.
const currentSlot = "current"

// SQLiteRepository implements cache.Store on the entity_snapshots table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ cache.Store = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Save replaces the stored snapshot.
func (r *SQLiteRepository) Save(ctx context.Context, snap *cache.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot: nil snapshot")
	}
	entities, err := json.Marshal(snap.Entities)
	if err != nil {
		return fmt.Errorf("encoding entities: %w", err)
	}

	query := `
		INSERT INTO entity_snapshots (slot, fetched_at, tier, entity_count, rejected, entities, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			tier = excluded.tier,
			entity_count = excluded.entity_count,
			rejected = excluded.rejected,
			entities = excluded.entities,
			saved_at = excluded.saved_at`

	_, err = r.db.ExecContext(ctx, query,
		currentSlot,
		snap.FetchedAt.UTC().Format(time.RFC3339Nano),
		snap.Tier,
		len(snap.Entities),
		snap.Rejected,
		string(entities),
		r.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when none has been saved.
func (r *SQLiteRepository) Load(ctx context.Context) (*cache.Snapshot, error) {
	query := `
		SELECT fetched_at, tier, rejected, entities
		FROM entity_snapshots
		WHERE slot = ?`

	var fetchedAt, entities string
	snap := &cache.Snapshot{}
	err := r.db.QueryRowContext(ctx, query, currentSlot).Scan(&fetchedAt, &snap.Tier, &snap.Rejected, &entities)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	snap.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing fetched_at: %w", err)
	}
	if err := json.Unmarshal([]byte(entities), &snap.Entities); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	return snap, nil
}

// Clear removes the stored snapshot.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM entity_snapshots WHERE slot = ?", currentSlot); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	return nil
}
