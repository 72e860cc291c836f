package tasks

import (
	"fmt"

	"github.com/desertthunder/libsync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	ResolveTarget
	FetchTarget
	MatchEntities
	PlanChanges
	ApplyChanges
	Done
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case ResolveTarget:
		return "resolve_target"
	case FetchTarget:
		return "fetch_target"
	case MatchEntities:
		return "match"
	case PlanChanges:
		return "plan"
	case ApplyChanges:
		return "apply"
	case Done:
		return "done"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchSourceUpdate(kind models.CollectionKind, id string) ProgressUpdate {
	msg := fmt.Sprintf("Fetching %s from source...", kind)
	if id != "" {
		msg = fmt.Sprintf("Fetching %s %s from source...", kind, id)
	}
	return ProgressUpdate{Phase: FetchSource, Message: msg}
}

func resolveTargetUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTarget,
		Message: fmt.Sprintf("Resolving target playlist for %q...", name),
	}
}

func createPlaylistUpdate(ref models.PlaylistRef) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTarget,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", ref.Name, ref.ID),
		Data:    ref,
	}
}

func fetchTargetUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTarget,
		Message: fmt.Sprintf("Fetching current %s from target...", name),
	}
}

func matchUpdate(step, total int, e models.SourceEntity, res models.MatchResult) ProgressUpdate {
	mark := "✗"
	if res.Matched() {
		mark = "✓"
	}
	return ProgressUpdate{
		Phase:   MatchEntities,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s", step, total, mark, e.DisplayName()),
		Data:    res,
	}
}

func planUpdate(diff models.CollectionDiff) ProgressUpdate {
	added, removed, unchanged := diff.Counts()
	return ProgressUpdate{
		Phase:   PlanChanges,
		Message: fmt.Sprintf("Planned %s: +%d -%d =%d", diff.Kind, added, removed, unchanged),
		Data:    diff,
	}
}

func applyUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ApplyChanges,
		Total:   total,
		Message: fmt.Sprintf("Applying %d changes...", total),
	}
}

func doneUpdate(res *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Message: fmt.Sprintf("Finished %s %s", res.Kind, res.Name),
		Data:    res,
	}
}
