package services

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
)

// ErrNotFound signals that a target id no longer exists in the catalog.
//
// It is the only signal that evicts a cached match.
var ErrNotFound = shared.ErrEntityNotFound

// Outcome classifies the result of a call to a catalog.
type Outcome int

const (
	Success Outcome = iota
	Transient
	Permanent
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OpResult is returned by every mutating call instead of a bare error so callers own the retry decision.
type OpResult struct {
	Outcome Outcome
	Err     error
}

// Ok is the successful [OpResult].
func Ok() OpResult { return OpResult{Outcome: Success} }

// ResultOf classifies err. A nil error is a success.
func ResultOf(err error) OpResult {
	return OpResult{Outcome: Classify(err), Err: err}
}

// Classify maps an error onto an [Outcome].
//
// Rate limits, timeouts, server errors and network failures are transient. Cancellation and everything else is permanent.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) {
		return Permanent
	}
	if errors.Is(err, shared.ErrTransientAPI) || errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	return Permanent
}

// SourceReader reads the authoritative library.
type SourceReader interface {
	Name() string
	// FetchCollection returns every entity of a collection. id is required for playlists and ignored otherwise.
	FetchCollection(ctx context.Context, kind models.CollectionKind, id string) (*models.SourceCollection, error)
	// OwnedPlaylists lists playlists owned by the authenticated user.
	OwnedPlaylists(ctx context.Context) ([]models.PlaylistRef, error)
}

// TargetSearcher searches the target catalog.
type TargetSearcher interface {
	Search(ctx context.Context, t models.EntityType, query string) ([]models.Candidate, error)
}

// TargetReader reads the current state of target collections.
type TargetReader interface {
	FetchCollection(ctx context.Context, kind models.CollectionKind, id string) (*models.TargetCollection, error)
	Playlists(ctx context.Context) ([]models.PlaylistRef, error)
}

// TargetMutator changes target collections.
type TargetMutator interface {
	// Add inserts targetID. position is the final index for playlists and -1 when order does not matter.
	Add(ctx context.Context, kind models.CollectionKind, collectionID, targetID string, position int) OpResult
	Remove(ctx context.Context, kind models.CollectionKind, collectionID string, item models.CollectionItem) OpResult
	CreatePlaylist(ctx context.Context, name, description string) (models.PlaylistRef, error)
}

// TargetCatalog is everything the sync engine needs from the target.
type TargetCatalog interface {
	Name() string
	TargetSearcher
	TargetReader
	TargetMutator
}
