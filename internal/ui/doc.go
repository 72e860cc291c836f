// Package ui implements the terminal views for libsync using bubbletea's Elm architecture.
//
// The interactive TUI walks through:
//  1. [CollectionListView] : Browse liked songs, saved albums, followed artists and owned playlists
//  2. [ConfirmView] : Confirm the sync (or dry run)
//  3. [SyncView] : Monitor progress with a spinner, a progress bar and the latest match lines
//  4. [ResultView] : Display the per-collection summary
//
// [NewRunModel] skips straight to the sync view for `sync --tui`.
// Progress updates flow through a channel from the [tasks.SyncEngine], providing non-blocking status reporting.
//
// [RenderSummary] renders the same summary with lipgloss for plain terminal output.
package ui
