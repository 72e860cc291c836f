// Package tasks brings YouTube Music collections in line with a Spotify library, with real-time progress reporting.
//
// # Core Operations
//
//  1. [SyncEngine.SyncCollection] : Sync one collection (a playlist, liked songs, saved albums or followed artists)
//     - Fetches the source collection
//     - Resolves the target playlist by configured mapping, then by name, creating it when missing
//     - Matches every source entity through the cache, the current target items, then a catalog search
//     - Plans the changes and applies them under the configured mirror policy
//
//  2. [SyncEngine.SyncAll] : Sync every requested kind
//     - Kinds run concurrently, playlists one after another
//     - A failed collection is recorded and the rest keep going
//
//  3. [SyncEngine.DrainUnmatchedReport] : Render the consolidated unmatched report once per run
//
// # Planning
//
// [Plan] computes a [models.CollectionDiff]. Playlists are ordered and get an edit script from a longest common
// subsequence alignment ([PlanOrdered]); very large playlists fall back to difflib opcodes. Liked songs, albums
// and artists are sets ([PlanUnordered]). Under the additive policy nothing is ever removed.
//
// # Execution
//
// The [Executor] bounds concurrent catalog calls with a semaphore and a rate limiter and retries transient
// failures with exponential backoff, honoring Retry-After hints. One failed operation never aborts the others.
// Edit scripts are applied deletions first (highest index first), then insertions in ascending position, with
// positions recomputed from what actually succeeded.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct carries the phase, step counters and a message. Updates use select with default
// so a slow consumer never blocks a sync.
package tasks
