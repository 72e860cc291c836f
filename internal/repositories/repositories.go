package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
)

// MatchRepository stores cache entries and failure memos in SQLite.
type MatchRepository struct {
	db     *sql.DB
	broken error
}

// NewMatchRepository creates a new MatchRepository with the given database connection
func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// NewUnreadableRepository stands in for a store whose file could not be opened.
// Check always fails with cause so the cache runs in always-miss mode; db is a scratch database.
func NewUnreadableRepository(db *sql.DB, cause error) *MatchRepository {
	return &MatchRepository{db: db, broken: cause}
}

// Check verifies the store is readable and carries the expected tables.
func (r *MatchRepository) Check(ctx context.Context) error {
	if r.broken != nil {
		return fmt.Errorf("%w: %w", shared.ErrCacheCorrupt, r.broken)
	}
	var result string
	if err := r.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check failed: %v", shared.ErrCacheCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check reported %q", shared.ErrCacheCorrupt, result)
	}

	for _, table := range []string{"match_entries", "match_failures"} {
		var name string
		err := r.db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			return fmt.Errorf("%w: missing table %s: %v", shared.ErrCacheCorrupt, table, err)
		}
	}
	return nil
}

// Load returns the entry for key, or [shared.ErrCacheMiss] when there is none.
func (r *MatchRepository) Load(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity_type, source_id, target_id, confidence, created_at
		FROM match_entries
		WHERE entity_type = ? AND source_id = ?`,
		key.EntityType.String(), key.SourceID,
	)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrCacheMiss
	}
	return entry, err
}

// Persist upserts entry, replacing any existing row for the same key.
func (r *MatchRepository) Persist(ctx context.Context, entry models.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_entries (entity_type, source_id, target_id, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, source_id) DO UPDATE SET
			target_id = excluded.target_id,
			confidence = excluded.confidence,
			created_at = excluded.created_at`,
		entry.EntityType.String(), entry.SourceID, entry.TargetID, entry.Confidence, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to persist cache entry %s: %w", entry.Key(), err)
	}
	return nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (r *MatchRepository) Delete(ctx context.Context, key models.CacheKey) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM match_entries WHERE entity_type = ? AND source_id = ?",
		key.EntityType.String(), key.SourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// List returns every entry of the given types ordered by type and source id. No types means all.
//
// Undecodable rows are skipped and counted.
func (r *MatchRepository) List(ctx context.Context, types ...models.EntityType) ([]models.CacheEntry, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_type, source_id, target_id, confidence, created_at
		FROM match_entries
		ORDER BY entity_type, source_id`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	skipped := 0
	for rows.Next() {
		entry, err := scanEntry(rows)
		if errors.Is(err, shared.ErrCacheCorrupt) {
			skipped++
			continue
		}
		if err != nil {
			return nil, skipped, err
		}
		if len(types) == 0 || containsType(types, entry.EntityType) {
			entries = append(entries, *entry)
		}
	}
	return entries, skipped, rows.Err()
}

// Clear removes every entry and failure memo of the given types. No types means all.
func (r *MatchRepository) Clear(ctx context.Context, types ...models.EntityType) (int64, error) {
	if len(types) == 0 {
		types = models.EntityTypes
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, t := range types {
		res, err := tx.ExecContext(ctx, "DELETE FROM match_entries WHERE entity_type = ?", t.String())
		if err != nil {
			return 0, fmt.Errorf("failed to clear %s entries: %w", t, err)
		}
		n, _ := res.RowsAffected()
		removed += n
		if _, err := tx.ExecContext(ctx, "DELETE FROM match_failures WHERE entity_type = ?", t.String()); err != nil {
			return 0, fmt.Errorf("failed to clear %s failures: %w", t, err)
		}
	}
	return removed, tx.Commit()
}

// LoadFailure returns the failure memo for key, or [shared.ErrCacheMiss].
func (r *MatchRepository) LoadFailure(ctx context.Context, key models.CacheKey) (*models.FailureEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity_type, source_id, inserted_at, next_retry
		FROM match_failures
		WHERE entity_type = ? AND source_id = ?`,
		key.EntityType.String(), key.SourceID,
	)

	failure, err := scanFailure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrCacheMiss
	}
	return failure, err
}

// PersistFailure upserts a failure memo.
func (r *MatchRepository) PersistFailure(ctx context.Context, f models.FailureEntry) error {
	if f.SourceID == "" {
		return fmt.Errorf("validation failed: failure memo needs a source id")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_failures (entity_type, source_id, inserted_at, next_retry)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, source_id) DO UPDATE SET
			inserted_at = excluded.inserted_at,
			next_retry = excluded.next_retry`,
		f.EntityType.String(), f.SourceID, f.InsertedAt.UTC(), f.NextRetry.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to persist failure memo %s:%s: %w", f.EntityType, f.SourceID, err)
	}
	return nil
}

// DeleteFailure removes the failure memo for key.
func (r *MatchRepository) DeleteFailure(ctx context.Context, key models.CacheKey) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM match_failures WHERE entity_type = ? AND source_id = ?",
		key.EntityType.String(), key.SourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete failure memo %s: %w", key, err)
	}
	return nil
}

// ListFailures returns every failure memo ordered by next retry.
func (r *MatchRepository) ListFailures(ctx context.Context) ([]models.FailureEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_type, source_id, inserted_at, next_retry
		FROM match_failures
		ORDER BY next_retry, entity_type, source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list failure memos: %w", err)
	}
	defer rows.Close()

	var failures []models.FailureEntry
	for rows.Next() {
		f, err := scanFailure(rows)
		if errors.Is(err, shared.ErrCacheCorrupt) {
			continue
		}
		if err != nil {
			return nil, err
		}
		failures = append(failures, *f)
	}
	return failures, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.CacheEntry, error) {
	var (
		entityType string
		entry      models.CacheEntry
	)
	if err := s.Scan(&entityType, &entry.SourceID, &entry.TargetID, &entry.Confidence, &entry.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheCorrupt, err)
	}

	t, err := models.ParseEntityType(entityType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheCorrupt, err)
	}
	entry.EntityType = t

	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheCorrupt, err)
	}
	return &entry, nil
}

func scanFailure(s scanner) (*models.FailureEntry, error) {
	var (
		entityType string
		f          models.FailureEntry
	)
	if err := s.Scan(&entityType, &f.SourceID, &f.InsertedAt, &f.NextRetry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheCorrupt, err)
	}

	t, err := models.ParseEntityType(entityType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheCorrupt, err)
	}
	f.EntityType = t
	return &f, nil
}

func containsType(types []models.EntityType, t models.EntityType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
