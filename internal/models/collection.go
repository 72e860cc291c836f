package models

import (
	"fmt"
	"strings"
)

// CollectionKind identifies a library collection.
type CollectionKind int

const (
	KindPlaylist CollectionKind = iota
	KindFavorites
	KindAlbums
	KindArtists
)

// CollectionKinds lists every kind in sync order.
var CollectionKinds = []CollectionKind{KindPlaylist, KindFavorites, KindAlbums, KindArtists}

func (k CollectionKind) String() string {
	switch k {
	case KindPlaylist:
		return "playlists"
	case KindFavorites:
		return "favorites"
	case KindAlbums:
		return "albums"
	case KindArtists:
		return "artists"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k CollectionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseCollectionKind accepts the plural names used in config and on the command line.
func ParseCollectionKind(s string) (CollectionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playlist", "playlists":
		return KindPlaylist, nil
	case "favorites", "favourites", "liked", "tracks":
		return KindFavorites, nil
	case "album", "albums":
		return KindAlbums, nil
	case "artist", "artists":
		return KindArtists, nil
	default:
		return 0, fmt.Errorf("unknown collection kind %q", s)
	}
}

// EntityType returns the type of entity stored in collections of this kind.
func (k CollectionKind) EntityType() EntityType {
	switch k {
	case KindAlbums:
		return EntityAlbum
	case KindArtists:
		return EntityArtist
	default:
		return EntityTrack
	}
}

// Ordered reports whether position within the collection is significant.
func (k CollectionKind) Ordered() bool { return k == KindPlaylist }

// MirrorPolicy decides whether extra target items are removed.
type MirrorPolicy string

const (
	PolicyMirror   MirrorPolicy = "mirror"
	PolicyAdditive MirrorPolicy = "additive"
)

// Valid reports whether p is a known policy.
func (p MirrorPolicy) Valid() bool { return p == PolicyMirror || p == PolicyAdditive }

// PlaylistRef is the minimal description of a playlist in either catalog.
type PlaylistRef struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	TrackCount  int
}

// CollectionItem is one entry of a target collection.
type CollectionItem struct {
	TargetID  string
	Ref       string     // catalog handle needed to remove this exact entry (e.g. setVideoId)
	Candidate *Candidate // metadata when the catalog returned it
}

// TargetCollection is the current state of a collection in the target catalog.
type TargetCollection struct {
	Kind  CollectionKind
	ID    string // playlist id; empty for library-wide collections
	Name  string
	Items []CollectionItem
}

// IDs returns the target ids of every item in collection order.
func (c *TargetCollection) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.TargetID
	}
	return ids
}

// Insertion places TargetID at Position of the final ordered list.
type Insertion struct {
	Position int    `json:"position"`
	TargetID string `json:"target_id"`
}

// Deletion removes the entry at Index of the current ordered list.
type Deletion struct {
	Index    int    `json:"index"`
	TargetID string `json:"target_id"`
}

// EditScript turns the current ordered list into Target.
//
// Applying Deletions in descending Index order and then Insertions in ascending Position order yields Target exactly.
type EditScript struct {
	Target     []string    `json:"target"`
	Insertions []Insertion `json:"insertions"`
	Deletions  []Deletion  `json:"deletions"`
}

// DeletedIDs returns the set of target ids removed by the script.
func (s *EditScript) DeletedIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Deletions))
	for _, d := range s.Deletions {
		out[d.TargetID] = struct{}{}
	}
	return out
}

// CollectionDiff is the planned change for one collection.
//
// Unordered kinds fill ToAdd, ToRemove, Unchanged and Retained; ordered kinds fill Script.
// Retained holds current items left alone because the policy is additive.
type CollectionDiff struct {
	Kind      CollectionKind `json:"kind"`
	ToAdd     []string       `json:"to_add,omitempty"`
	ToRemove  []string       `json:"to_remove,omitempty"`
	Unchanged []string       `json:"unchanged,omitempty"`
	Retained  []string       `json:"retained,omitempty"`
	Script    *EditScript    `json:"script,omitempty"`
}

// Empty reports whether applying the diff would change nothing.
func (d CollectionDiff) Empty() bool {
	if d.Script != nil {
		return len(d.Script.Insertions) == 0 && len(d.Script.Deletions) == 0
	}
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Counts returns the number of additions, removals, and unchanged entries. Retained entries are not counted.
func (d CollectionDiff) Counts() (added, removed, unchanged int) {
	if d.Script != nil {
		added = len(d.Script.Insertions)
		removed = len(d.Script.Deletions)
		return added, removed, len(d.Script.Target) - added - len(d.Retained)
	}
	return len(d.ToAdd), len(d.ToRemove), len(d.Unchanged)
}

// SourceCollection is one collection pulled from the source catalog.
type SourceCollection struct {
	Kind     CollectionKind
	ID       string // playlist id; empty for library-wide collections
	Name     string
	Entities []SourceEntity
}
