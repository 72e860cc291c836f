// Package repositories implements SQLite persistence for the match cache.
//
// Key Implementations:
//   - [MatchRepository] : positive matches in match_entries and the failure memo in match_failures
//
// Rows are keyed by (entity_type, source_id). Writes are upserts, so there is never more than one row per key.
// Rows that cannot be decoded are reported as [shared.ErrCacheCorrupt] rather than returned half-filled.
package repositories
