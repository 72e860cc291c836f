package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityType discriminates the kinds of entity that can be matched.
type EntityType int

const (
	EntityTrack EntityType = iota
	EntityAlbum
	EntityArtist
)

// EntityTypes lists every entity type in report order.
var EntityTypes = []EntityType{EntityTrack, EntityAlbum, EntityArtist}

func (t EntityType) String() string {
	switch t {
	case EntityTrack:
		return "track"
	case EntityAlbum:
		return "album"
	case EntityArtist:
		return "artist"
	default:
		return fmt.Sprintf("entity(%d)", int(t))
	}
}

func (t EntityType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParseEntityType is the inverse of [EntityType.String].
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "track", "tracks":
		return EntityTrack, nil
	case "album", "albums":
		return EntityAlbum, nil
	case "artist", "artists":
		return EntityArtist, nil
	default:
		return 0, fmt.Errorf("unknown entity type %q", s)
	}
}

// SourceEntity is an immutable snapshot of a track, album, or artist pulled from the source catalog.
//
// Zero values mean "absent" for the optional fields.
type SourceEntity struct {
	Type          EntityType
	ID            string
	Title         string   // track/album title or artist name
	ArtistNames   []string // ordered, primary artist first
	AlbumName     string
	DurationMs    int
	FollowerCount int
	TrackCount    int    // albums only
	ISRC          string // tracks only
}

// DisplayName renders the entity the way it appears in reports: "Artist - Title".
func (e SourceEntity) DisplayName() string {
	if e.Type == EntityArtist || len(e.ArtistNames) == 0 {
		return e.Title
	}
	return strings.Join(e.ArtistNames, ", ") + " - " + e.Title
}

// Candidate is a target catalog entity produced by a search query.
// It only lives for the duration of matching.
type Candidate struct {
	Type          EntityType
	ID            string
	Title         string
	ArtistNames   []string
	AlbumName     string
	DurationMs    int
	FollowerCount int
	TrackCount    int
	ISRC          string
}

// MatchedVia records how a [MatchResult] was produced.
type MatchedVia int

const (
	ViaNone MatchedVia = iota
	ViaCache
	ViaFresh
)

func (v MatchedVia) String() string {
	switch v {
	case ViaCache:
		return "cache"
	case ViaFresh:
		return "fresh"
	default:
		return "none"
	}
}

// MarshalText lets results serialize as "cache"/"fresh"/"none".
func (v MatchedVia) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// MatchResult is the matching decision for one source entity.
// TargetID is empty when no candidate cleared the threshold.
type MatchResult struct {
	SourceID   string     `json:"source_id"`
	TargetID   string     `json:"target_id,omitempty"`
	Confidence float64    `json:"confidence"`
	MatchedVia MatchedVia `json:"matched_via"`
}

// Matched reports whether a target entity was selected.
func (r MatchResult) Matched() bool { return r.TargetID != "" }

// CacheKey identifies a [CacheEntry].
type CacheKey struct {
	EntityType EntityType
	SourceID   string
}

func (k CacheKey) String() string { return k.EntityType.String() + ":" + k.SourceID }

// CacheEntry is a persisted positive match. There is at most one entry per [CacheKey].
type CacheEntry struct {
	EntityType EntityType
	SourceID   string
	TargetID   string
	Confidence float64
	CreatedAt  time.Time
}

// Key returns the entry's cache key.
func (e CacheEntry) Key() CacheKey {
	return CacheKey{EntityType: e.EntityType, SourceID: e.SourceID}
}

// Validate checks the entry is storable.
func (e CacheEntry) Validate() error {
	if e.SourceID == "" {
		return fmt.Errorf("cache entry: source id is required")
	}
	if e.TargetID == "" {
		return fmt.Errorf("cache entry %s: target id is required", e.Key())
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("cache entry %s: confidence %.3f outside [0,1]", e.Key(), e.Confidence)
	}
	return nil
}

// FailureEntry remembers a failed match so the entity is not searched again until NextRetry.
type FailureEntry struct {
	EntityType EntityType
	SourceID   string
	InsertedAt time.Time
	NextRetry  time.Time
}

// UnmatchedRecord is a source entity that failed to match during the current run.
type UnmatchedRecord struct {
	EntityType  EntityType
	SourceID    string
	DisplayName string
	Context     string // collection the entity came from, e.g. a playlist name
}
