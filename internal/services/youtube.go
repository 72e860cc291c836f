// YouTube Music target catalog
//
// Communicates with the FastAPI proxy that wraps the ytmusicapi Python library.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
)

const (
	defaultYTBaseURL = "http://localhost:8080"
	searchLimit      = 20
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Album       *youtubeAlbum   `json:"album"`
	DurationSec int             `json:"duration_seconds"`
	ISRC        string          `json:"isrc,omitempty"`
	SetVideoID  string          `json:"setVideoId,omitempty"` // playlist entry handle
}

// YouTubeAlbum represents an album in search results and the library.
type YouTubeAlbum struct {
	BrowseID   string          `json:"browseId"`
	PlaylistID string          `json:"playlistId,omitempty"`
	Title      string          `json:"title"`
	Artists    []YouTubeArtist `json:"artists"`
	TrackCount int             `json:"trackCount,omitempty"`
}

// YouTubeArtistResult represents an artist in search results and subscriptions.
type YouTubeArtistResult struct {
	BrowseID    string `json:"browseId"`
	Artist      string `json:"artist"`
	Subscribers string `json:"subscribers,omitempty"`
}

// YouTubePlaylist represents a playlist from YouTube Music.
type YouTubePlaylist struct {
	ID          string         `json:"id"`
	PlaylistID  string         `json:"playlistId,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	TrackCount  int            `json:"trackCount"`
	Count       int            `json:"count,omitempty"`
	Tracks      []YouTubeTrack `json:"tracks,omitempty"`
}

// YouTubeService implements [TargetCatalog] for YouTube Music via the proxy.
type YouTubeService struct {
	api *APIService
}

// NewYouTubeService creates a YouTube Music client. The headers file path is forwarded to the proxy on every request.
func NewYouTubeService(cfg shared.YouTubeConfig, client *http.Client) *YouTubeService {
	baseURL := cfg.ProxyURL
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	api := NewAPIService(baseURL, client)
	if cfg.HeadersPath != "" {
		api.SetHeader("X-Auth-File", cfg.HeadersPath)
	}
	return &YouTubeService{api: api}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

// Search implements [TargetSearcher].
//
// Calls GET /api/search?q={query}&filter={songs|albums|artists} on the proxy.
func (y *YouTubeService) Search(ctx context.Context, t models.EntityType, query string) ([]models.Candidate, error) {
	filter := map[models.EntityType]string{
		models.EntityTrack:  "songs",
		models.EntityAlbum:  "albums",
		models.EntityArtist: "artists",
	}[t]
	if filter == "" {
		return nil, fmt.Errorf("%w: entity type %v", shared.ErrInvalidArgument, t)
	}

	endpoint := fmt.Sprintf("/api/search?q=%s&filter=%s&limit=%d", url.QueryEscape(query), filter, searchLimit)

	switch t {
	case models.EntityTrack:
		var results []YouTubeTrack
		if err := y.api.Get(ctx, endpoint, &results); err != nil {
			return nil, err
		}
		out := make([]models.Candidate, 0, len(results))
		for _, r := range results {
			if r.VideoID != "" {
				out = append(out, trackCandidate(r))
			}
		}
		return out, nil

	case models.EntityAlbum:
		var results []YouTubeAlbum
		if err := y.api.Get(ctx, endpoint, &results); err != nil {
			return nil, err
		}
		out := make([]models.Candidate, 0, len(results))
		for _, r := range results {
			if r.BrowseID != "" {
				out = append(out, albumCandidate(r))
			}
		}
		return out, nil

	default:
		var results []YouTubeArtistResult
		if err := y.api.Get(ctx, endpoint, &results); err != nil {
			return nil, err
		}
		out := make([]models.Candidate, 0, len(results))
		for _, r := range results {
			if r.BrowseID != "" {
				out = append(out, artistCandidate(r))
			}
		}
		return out, nil
	}
}

// Playlists lists the user's playlists.
//
// Calls GET /api/library/playlists on the proxy.
func (y *YouTubeService) Playlists(ctx context.Context) ([]models.PlaylistRef, error) {
	var playlists []YouTubePlaylist
	if err := y.api.Get(ctx, "/api/library/playlists", &playlists); err != nil {
		return nil, err
	}

	refs := make([]models.PlaylistRef, len(playlists))
	for i, p := range playlists {
		refs[i] = models.PlaylistRef{
			ID:          firstNonEmpty(p.PlaylistID, p.ID),
			Name:        p.Title,
			Description: p.Description,
			TrackCount:  max(p.Count, p.TrackCount),
		}
	}
	return refs, nil
}

// FetchCollection implements [TargetReader].
func (y *YouTubeService) FetchCollection(ctx context.Context, kind models.CollectionKind, id string) (*models.TargetCollection, error) {
	out := &models.TargetCollection{Kind: kind, ID: id}

	switch kind {
	case models.KindPlaylist:
		if id == "" {
			return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
		}
		var p YouTubePlaylist
		if err := y.api.Get(ctx, "/api/playlists/"+url.PathEscape(id), &p); err != nil {
			return nil, err
		}
		out.Name = p.Title
		out.Items = trackItems(p.Tracks)

	case models.KindFavorites:
		var liked YouTubePlaylist
		if err := y.api.Get(ctx, "/api/library/liked-songs", &liked); err != nil {
			return nil, err
		}
		out.Name = "Liked Music"
		out.Items = trackItems(liked.Tracks)

	case models.KindAlbums:
		var albums []YouTubeAlbum
		if err := y.api.Get(ctx, "/api/library/albums", &albums); err != nil {
			return nil, err
		}
		out.Name = "Library Albums"
		for _, a := range albums {
			c := albumCandidate(a)
			out.Items = append(out.Items, models.CollectionItem{TargetID: a.BrowseID, Ref: a.PlaylistID, Candidate: &c})
		}

	case models.KindArtists:
		var artists []YouTubeArtistResult
		if err := y.api.Get(ctx, "/api/library/subscriptions", &artists); err != nil {
			return nil, err
		}
		out.Name = "Subscriptions"
		for _, a := range artists {
			c := artistCandidate(a)
			out.Items = append(out.Items, models.CollectionItem{TargetID: a.BrowseID, Candidate: &c})
		}

	default:
		return nil, fmt.Errorf("%w: collection kind %v", shared.ErrInvalidArgument, kind)
	}
	return out, nil
}

// Add implements [TargetMutator].
func (y *YouTubeService) Add(ctx context.Context, kind models.CollectionKind, collectionID, targetID string, position int) OpResult {
	switch kind {
	case models.KindPlaylist:
		body := struct {
			VideoIDs []string `json:"video_ids"`
			Position *int     `json:"position,omitempty"`
		}{VideoIDs: []string{targetID}}
		if position >= 0 {
			body.Position = &position
		}
		return ResultOf(y.api.Post(ctx, "/api/playlists/"+url.PathEscape(collectionID)+"/items", body, nil))
	case models.KindFavorites:
		return y.rate(ctx, targetID, "LIKE")
	case models.KindAlbums:
		return ResultOf(y.api.Post(ctx, "/api/library/albums/"+url.PathEscape(targetID), nil, nil))
	case models.KindArtists:
		return ResultOf(y.api.Post(ctx, "/api/artists/"+url.PathEscape(targetID)+"/subscribe", nil, nil))
	default:
		return ResultOf(fmt.Errorf("%w: collection kind %v", shared.ErrInvalidArgument, kind))
	}
}

// Remove implements [TargetMutator]. Playlist removal needs the entry's setVideoId in item.Ref.
func (y *YouTubeService) Remove(ctx context.Context, kind models.CollectionKind, collectionID string, item models.CollectionItem) OpResult {
	switch kind {
	case models.KindPlaylist:
		type video struct {
			VideoID    string `json:"videoId"`
			SetVideoID string `json:"setVideoId,omitempty"`
		}
		body := struct {
			Videos []video `json:"videos"`
		}{Videos: []video{{VideoID: item.TargetID, SetVideoID: item.Ref}}}
		return ResultOf(y.api.Delete(ctx, "/api/playlists/"+url.PathEscape(collectionID)+"/items", body))
	case models.KindFavorites:
		return y.rate(ctx, item.TargetID, "INDIFFERENT")
	case models.KindAlbums:
		return ResultOf(y.api.Delete(ctx, "/api/library/albums/"+url.PathEscape(item.TargetID), nil))
	case models.KindArtists:
		return ResultOf(y.api.Delete(ctx, "/api/artists/"+url.PathEscape(item.TargetID)+"/subscribe", nil))
	default:
		return ResultOf(fmt.Errorf("%w: collection kind %v", shared.ErrInvalidArgument, kind))
	}
}

func (y *YouTubeService) rate(ctx context.Context, videoID, rating string) OpResult {
	body := map[string]string{"rating": rating}
	return ResultOf(y.api.Post(ctx, "/api/songs/"+url.PathEscape(videoID)+"/rating", body, nil))
}

// CreatePlaylist creates a private playlist.
//
// Calls POST /api/playlists on the proxy.
func (y *YouTubeService) CreatePlaylist(ctx context.Context, name, description string) (models.PlaylistRef, error) {
	req := struct {
		Title         string `json:"title"`
		Description   string `json:"description"`
		PrivacyStatus string `json:"privacy_status"`
	}{Title: name, Description: description, PrivacyStatus: "PRIVATE"}

	var resp struct {
		PlaylistID string `json:"playlist_id"`
	}
	if err := y.api.Post(ctx, "/api/playlists", req, &resp); err != nil {
		return models.PlaylistRef{}, fmt.Errorf("failed to create playlist %q: %w", name, err)
	}
	if resp.PlaylistID == "" {
		return models.PlaylistRef{}, fmt.Errorf("%w: create playlist returned no id", shared.ErrPermanentAPI)
	}
	return models.PlaylistRef{ID: resp.PlaylistID, Name: name, Description: description}, nil
}

func trackItems(tracks []YouTubeTrack) []models.CollectionItem {
	items := make([]models.CollectionItem, 0, len(tracks))
	for _, t := range tracks {
		if t.VideoID == "" {
			continue
		}
		c := trackCandidate(t)
		items = append(items, models.CollectionItem{TargetID: t.VideoID, Ref: t.SetVideoID, Candidate: &c})
	}
	return items
}

func trackCandidate(t YouTubeTrack) models.Candidate {
	c := models.Candidate{
		Type:        models.EntityTrack,
		ID:          t.VideoID,
		Title:       t.Title,
		ArtistNames: ytArtistNames(t.Artists),
		DurationMs:  t.DurationSec * 1000,
		ISRC:        t.ISRC,
	}
	if t.Album != nil {
		c.AlbumName = t.Album.Name
	}
	return c
}

func albumCandidate(a YouTubeAlbum) models.Candidate {
	return models.Candidate{
		Type:        models.EntityAlbum,
		ID:          a.BrowseID,
		Title:       a.Title,
		ArtistNames: ytArtistNames(a.Artists),
		TrackCount:  a.TrackCount,
	}
}

func artistCandidate(a YouTubeArtistResult) models.Candidate {
	return models.Candidate{
		Type:          models.EntityArtist,
		ID:            a.BrowseID,
		Title:         a.Artist,
		FollowerCount: ParseCount(a.Subscribers),
	}
}

func ytArtistNames(artists []YouTubeArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// ParseCount reads counts like "1.2M subscribers" or "930K". Unparseable input is 0.
func ParseCount(s string) int {
	fields := strings.Fields(strings.ReplaceAll(s, ",", ""))
	if len(fields) == 0 {
		return 0
	}
	num := strings.ToUpper(fields[0])

	mult := 1.0
	switch {
	case strings.HasSuffix(num, "K"):
		mult, num = 1e3, strings.TrimSuffix(num, "K")
	case strings.HasSuffix(num, "M"):
		mult, num = 1e6, strings.TrimSuffix(num, "M")
	case strings.HasSuffix(num, "B"):
		mult, num = 1e9, strings.TrimSuffix(num, "B")
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int(v*mult + 0.5)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
