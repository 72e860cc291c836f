// Spotify Web API source reader
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	likedSongsName = "Liked Songs"
)

type followers struct {
	Total int `json:"total"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Followers followers `json:"followers"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	TotalTracks int             `json:"total_tracks"`
}

// SpotifyTrack represents a Spotify track. ID is empty for local files.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	IsLocal     bool            `json:"is_local"`
}

// Owner is the owner of a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type trackItem struct {
	Track *SpotifyTrack `json:"track"`
}

type albumItem struct {
	Album SpotifyAlbum `json:"album"`
}

// page is Spotify's offset paging envelope.
type page[T any] struct {
	Items []T    `json:"items"`
	Total int    `json:"total"`
	Next  string `json:"next"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       Owner  `json:"owner"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// SpotifyService reads the user's Spotify library.
//
// Access tokens are refreshed through [oauth2] using the configured refresh token.
type SpotifyService struct {
	api *APIService
}

// SpotifyOAuthConfig builds the authorization code flow config for the library scopes libsync reads.
func SpotifyOAuthConfig(creds shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"user-library-read",
			"user-follow-read",
		},
		Endpoint: oauth2.Endpoint{AuthURL: spotifyAuthURL, TokenURL: spotifyTokenURL},
	}
}

// NewSpotifyService creates a Spotify reader.
//
// baseURL defaults to the public API. When client is nil an [oauth2] client is built from the credentials,
// which must include a refresh token or an access token.
func NewSpotifyService(ctx context.Context, creds shared.SpotifyConfig, baseURL string, client *http.Client) (*SpotifyService, error) {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	if client == nil {
		if creds.RefreshToken == "" && creds.AccessToken == "" {
			return nil, fmt.Errorf("%w: spotify needs refresh_token or access_token", shared.ErrMissingCredentials)
		}
		if creds.RefreshToken != "" && (creds.ClientID == "" || creds.ClientSecret == "") {
			return nil, fmt.Errorf("%w: spotify refresh needs client_id and client_secret", shared.ErrMissingCredentials)
		}
		token := &oauth2.Token{AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken}
		client = oauth2.NewClient(ctx, SpotifyOAuthConfig(creds).TokenSource(ctx, token))
	}

	return &SpotifyService{api: NewAPIService(baseURL, client)}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.api.Get(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// collect follows "next" links until the last page.
func collect[T any](ctx context.Context, api *APIService, first string) ([]T, error) {
	var all []T
	for next := first; next != ""; {
		var p page[T]
		if err := api.Get(ctx, next, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		next = p.Next
	}
	return all, nil
}

// OwnedPlaylists lists playlists owned by the authenticated user, skipping followed ones.
func (s *SpotifyService) OwnedPlaylists(ctx context.Context) ([]models.PlaylistRef, error) {
	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}

	items, err := collect[SpotifySimplePlaylist](ctx, s.api, "/me/playlists?limit=50")
	if err != nil {
		return nil, err
	}

	var refs []models.PlaylistRef
	for _, p := range items {
		if p.Owner.ID != user.ID {
			continue
		}
		refs = append(refs, models.PlaylistRef{
			ID: p.ID, Name: p.Name, Description: p.Description, OwnerID: p.Owner.ID, TrackCount: p.Tracks.Total,
		})
	}
	return refs, nil
}

// FetchCollection implements [SourceReader].
func (s *SpotifyService) FetchCollection(ctx context.Context, kind models.CollectionKind, id string) (*models.SourceCollection, error) {
	out := &models.SourceCollection{Kind: kind}

	switch kind {
	case models.KindPlaylist:
		if id == "" {
			return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
		}
		var meta SpotifySimplePlaylist
		if err := s.api.Get(ctx, "/playlists/"+url.PathEscape(id)+"?fields=id,name,description,owner", &meta); err != nil {
			return nil, fmt.Errorf("failed to fetch playlist %s: %w", id, err)
		}
		items, err := collect[trackItem](ctx, s.api, "/playlists/"+url.PathEscape(id)+"/tracks?limit=100")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks of playlist %s: %w", id, err)
		}
		out.ID, out.Name = meta.ID, meta.Name
		out.Entities = tracksToEntities(items)

	case models.KindFavorites:
		items, err := collect[trackItem](ctx, s.api, "/me/tracks?limit=50")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch saved tracks: %w", err)
		}
		out.Name = likedSongsName
		out.Entities = tracksToEntities(items)

	case models.KindAlbums:
		items, err := collect[albumItem](ctx, s.api, "/me/albums?limit=50")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch saved albums: %w", err)
		}
		out.Name = "Saved Albums"
		for _, item := range items {
			a := item.Album
			out.Entities = append(out.Entities, models.SourceEntity{
				Type:        models.EntityAlbum,
				ID:          a.ID,
				Title:       a.Name,
				ArtistNames: artistNames(a.Artists),
				TrackCount:  a.TotalTracks,
			})
		}

	case models.KindArtists:
		artists, err := s.followedArtists(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch followed artists: %w", err)
		}
		out.Name = "Followed Artists"
		for _, a := range artists {
			out.Entities = append(out.Entities, models.SourceEntity{
				Type:          models.EntityArtist,
				ID:            a.ID,
				Title:         a.Name,
				FollowerCount: a.Followers.Total,
			})
		}

	default:
		return nil, fmt.Errorf("%w: collection kind %v", shared.ErrInvalidArgument, kind)
	}

	return out, nil
}

// followedArtists pages /me/following, which uses cursors rather than offsets.
func (s *SpotifyService) followedArtists(ctx context.Context) ([]SpotifyArtist, error) {
	var all []SpotifyArtist
	for next := "/me/following?type=artist&limit=50"; next != ""; {
		var resp struct {
			Artists page[SpotifyArtist] `json:"artists"`
		}
		if err := s.api.Get(ctx, next, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Artists.Items...)
		next = resp.Artists.Next
	}
	return all, nil
}

func tracksToEntities(items []trackItem) []models.SourceEntity {
	entities := make([]models.SourceEntity, 0, len(items))
	for _, item := range items {
		t := item.Track
		if t == nil || t.ID == "" || t.IsLocal {
			continue
		}
		entities = append(entities, models.SourceEntity{
			Type:        models.EntityTrack,
			ID:          t.ID,
			Title:       t.Name,
			ArtistNames: artistNames(t.Artists),
			AlbumName:   t.Album.Name,
			DurationMs:  t.DurationMS,
			ISRC:        t.ExternalIDs.ISRC,
		})
	}
	return entities
}

func artistNames(artists []SpotifyArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}
