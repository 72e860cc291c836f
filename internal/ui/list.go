package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/libsync/internal/models"
)

var _ list.Item = collectionItem{}

// collectionItem is one syncable collection: a library-wide kind or a single playlist.
type collectionItem struct {
	kind     models.CollectionKind
	playlist models.PlaylistRef
}

var libraryTitles = map[models.CollectionKind]string{
	models.KindFavorites: "Liked Songs",
	models.KindAlbums:    "Saved Albums",
	models.KindArtists:   "Followed Artists",
}

func (i collectionItem) FilterValue() string { return i.Title() }

func (i collectionItem) Title() string {
	if i.kind == models.KindPlaylist {
		return i.playlist.Name
	}
	return libraryTitles[i.kind]
}

func (i collectionItem) Description() string {
	if i.kind != models.KindPlaylist {
		return fmt.Sprintf("library • %s", i.kind)
	}
	desc := fmt.Sprintf("%d tracks", i.playlist.TrackCount)
	if i.playlist.Description != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Description)
	}
	return desc
}

// collectionItems lists the library kinds first, then every playlist.
func collectionItems(playlists []models.PlaylistRef) []list.Item {
	items := []list.Item{
		collectionItem{kind: models.KindFavorites},
		collectionItem{kind: models.KindAlbums},
		collectionItem{kind: models.KindArtists},
	}
	for _, p := range playlists {
		items = append(items, collectionItem{kind: models.KindPlaylist, playlist: p})
	}
	return items
}
