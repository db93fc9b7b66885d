// Package repositories implements the SQLite feed cache.
//
// The cache mirrors the catalog records the user has seen or published so `vgen feed list` works offline and
// optimistic entries survive between invocations.
// Rows are soft deleted via deleted_at timestamps and excluded from queries by default.
//
// Key Implementations:
//   - [VideoRepository] : feed_videos persistence with in-place replacement keyed by catalog id
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
