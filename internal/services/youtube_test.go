package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func newYouTubeTestService(t *testing.T, handler http.HandlerFunc) (*YouTubeService, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		if r.Header.Get("X-Auth-File") != "/tmp/headers_auth.json" {
			t.Errorf("expected X-Auth-File header, got %q", r.Header.Get("X-Auth-File"))
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := shared.YouTubeConfig{ProxyURL: server.URL, HeadersPath: "/tmp/headers_auth.json"}
	return NewYouTubeService(cfg, server.Client()), &reqs
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestYouTubeService(t *testing.T) {
	ctx := context.Background()

	t.Run("Name and default URL", func(t *testing.T) {
		srv := NewYouTubeService(shared.YouTubeConfig{}, nil)
		if srv.Name() != "YouTube Music" {
			t.Errorf("expected service name 'YouTube Music', got %s", srv.Name())
		}
		if srv.api.baseURL != "http://localhost:8080" {
			t.Errorf("expected default proxy URL, got %s", srv.api.baseURL)
		}
	})

	t.Run("Search", func(t *testing.T) {
		tc := []struct {
			name     string
			typ      models.EntityType
			filter   string
			response any
			want     models.Candidate
		}{
			{
				name:   "songs",
				typ:    models.EntityTrack,
				filter: "songs",
				response: []map[string]any{
					{"videoId": "yt:a", "title": "Bohemian Rhapsody", "artists": []map[string]any{{"name": "Queen"}},
						"album": map[string]any{"name": "A Night at the Opera"}, "duration_seconds": 354},
					{"videoId": "", "title": "dropped"},
				},
				want: models.Candidate{Type: models.EntityTrack, ID: "yt:a", Title: "Bohemian Rhapsody",
					ArtistNames: []string{"Queen"}, AlbumName: "A Night at the Opera", DurationMs: 354000},
			},
			{
				name:     "albums",
				typ:      models.EntityAlbum,
				filter:   "albums",
				response: []map[string]any{{"browseId": "MPRE1", "title": "Abbey Road", "artists": []map[string]any{{"name": "The Beatles"}}, "trackCount": 17}},
				want:     models.Candidate{Type: models.EntityAlbum, ID: "MPRE1", Title: "Abbey Road", ArtistNames: []string{"The Beatles"}, TrackCount: 17},
			},
			{
				name:     "artists",
				typ:      models.EntityArtist,
				filter:   "artists",
				response: []map[string]any{{"browseId": "UC1", "artist": "Boards of Canada", "subscribers": "1.2M subscribers"}},
				want:     models.Candidate{Type: models.EntityArtist, ID: "UC1", Title: "Boards of Canada", FollowerCount: 1200000},
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				srv, _ := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path != "/api/search" {
						t.Errorf("expected /api/search, got %s", r.URL.Path)
					}
					if got := r.URL.Query().Get("filter"); got != tt.filter {
						t.Errorf("expected filter %s, got %s", tt.filter, got)
					}
					if got := r.URL.Query().Get("q"); got != "query & more" {
						t.Errorf("expected query to round trip, got %q", got)
					}
					writeJSON(w, tt.response)
				})

				got, err := srv.Search(ctx, tt.typ, "query & more")
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if len(got) != 1 {
					t.Fatalf("expected 1 candidate, got %d", len(got))
				}
				c := got[0]
				if c.Type != tt.want.Type || c.ID != tt.want.ID || c.Title != tt.want.Title ||
					c.AlbumName != tt.want.AlbumName || c.DurationMs != tt.want.DurationMs ||
					c.TrackCount != tt.want.TrackCount || c.FollowerCount != tt.want.FollowerCount ||
					len(c.ArtistNames) != len(tt.want.ArtistNames) {
					t.Errorf("got %+v, want %+v", c, tt.want)
				}
			})
		}
	})

	t.Run("FetchCollection playlist keeps entry handles", func(t *testing.T) {
		srv, _ := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/playlists/PL1" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			writeJSON(w, map[string]any{
				"id": "PL1", "title": "Road Trip",
				"tracks": []map[string]any{
					{"videoId": "v1", "title": "One", "setVideoId": "s1"},
					{"videoId": "v2", "title": "Two", "setVideoId": "s2"},
				},
			})
		})

		coll, err := srv.FetchCollection(ctx, models.KindPlaylist, "PL1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if coll.Name != "Road Trip" || len(coll.Items) != 2 {
			t.Fatalf("unexpected collection %+v", coll)
		}
		if coll.Items[1].TargetID != "v2" || coll.Items[1].Ref != "s2" || coll.Items[1].Candidate == nil {
			t.Errorf("unexpected item %+v", coll.Items[1])
		}
	})

	t.Run("FetchCollection library kinds", func(t *testing.T) {
		tc := []struct {
			kind models.CollectionKind
			path string
			body any
			want []string
		}{
			{models.KindFavorites, "/api/library/liked-songs", map[string]any{"tracks": []map[string]any{{"videoId": "v9"}}}, []string{"v9"}},
			{models.KindAlbums, "/api/library/albums", []map[string]any{{"browseId": "MPRE1"}, {"browseId": "MPRE2"}}, []string{"MPRE1", "MPRE2"}},
			{models.KindArtists, "/api/library/subscriptions", []map[string]any{{"browseId": "UC1", "artist": "Low"}}, []string{"UC1"}},
		}

		for _, tt := range tc {
			t.Run(tt.kind.String(), func(t *testing.T) {
				srv, _ := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path != tt.path {
						t.Errorf("expected %s, got %s", tt.path, r.URL.Path)
					}
					writeJSON(w, tt.body)
				})

				coll, err := srv.FetchCollection(ctx, tt.kind, "")
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				ids := coll.IDs()
				if len(ids) != len(tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, ids)
				}
				for i := range ids {
					if ids[i] != tt.want[i] {
						t.Errorf("expected %v, got %v", tt.want, ids)
					}
				}
			})
		}
	})

	t.Run("Add", func(t *testing.T) {
		tc := []struct {
			name     string
			kind     models.CollectionKind
			position int
			method   string
			path     string
			body     string
		}{
			{"playlist at position", models.KindPlaylist, 2, http.MethodPost, "/api/playlists/PL1/items", `{"video_ids":["v1"],"position":2}`},
			{"playlist unordered", models.KindPlaylist, -1, http.MethodPost, "/api/playlists/PL1/items", `{"video_ids":["v1"]}`},
			{"favorites", models.KindFavorites, -1, http.MethodPost, "/api/songs/v1/rating", `{"rating":"LIKE"}`},
			{"albums", models.KindAlbums, -1, http.MethodPost, "/api/library/albums/v1", ""},
			{"artists", models.KindArtists, -1, http.MethodPost, "/api/artists/v1/subscribe", ""},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				srv, reqs := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})

				if res := srv.Add(ctx, tt.kind, "PL1", "v1", tt.position); res.Outcome != Success {
					t.Fatalf("expected success, got %v (%v)", res.Outcome, res.Err)
				}
				got := (*reqs)[0]
				if got.Method != tt.method || got.Path != tt.path {
					t.Errorf("expected %s %s, got %s %s", tt.method, tt.path, got.Method, got.Path)
				}
				if tt.body != "" && trimNewline(got.Body) != tt.body {
					t.Errorf("expected body %s, got %s", tt.body, got.Body)
				}
			})
		}
	})

	t.Run("Remove", func(t *testing.T) {
		tc := []struct {
			name   string
			kind   models.CollectionKind
			method string
			path   string
			body   string
		}{
			{"playlist", models.KindPlaylist, http.MethodDelete, "/api/playlists/PL1/items", `{"videos":[{"videoId":"v1","setVideoId":"s1"}]}`},
			{"favorites", models.KindFavorites, http.MethodPost, "/api/songs/v1/rating", `{"rating":"INDIFFERENT"}`},
			{"albums", models.KindAlbums, http.MethodDelete, "/api/library/albums/v1", ""},
			{"artists", models.KindArtists, http.MethodDelete, "/api/artists/v1/subscribe", ""},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				srv, reqs := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})

				item := models.CollectionItem{TargetID: "v1", Ref: "s1"}
				if res := srv.Remove(ctx, tt.kind, "PL1", item); res.Outcome != Success {
					t.Fatalf("expected success, got %v (%v)", res.Outcome, res.Err)
				}
				got := (*reqs)[0]
				if got.Method != tt.method || got.Path != tt.path {
					t.Errorf("expected %s %s, got %s %s", tt.method, tt.path, got.Method, got.Path)
				}
				if tt.body != "" && trimNewline(got.Body) != tt.body {
					t.Errorf("expected body %s, got %s", tt.body, got.Body)
				}
			})
		}
	})

	t.Run("Add classifies failures", func(t *testing.T) {
		tc := []struct {
			status   int
			want     Outcome
			notFound bool
		}{
			{http.StatusTooManyRequests, Transient, false},
			{http.StatusServiceUnavailable, Transient, false},
			{http.StatusNotFound, Permanent, true},
			{http.StatusForbidden, Permanent, false},
		}

		for _, tt := range tc {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				srv, _ := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					writeJSON(w, map[string]string{"detail": "nope"})
				})

				res := srv.Add(ctx, models.KindFavorites, "", "gone", -1)
				if res.Outcome != tt.want {
					t.Errorf("expected %v, got %v", tt.want, res.Outcome)
				}
				if errors.Is(res.Err, ErrNotFound) != tt.notFound {
					t.Errorf("ErrNotFound in chain = %v, want %v", errors.Is(res.Err, ErrNotFound), tt.notFound)
				}
			})
		}
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		srv, reqs := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]string{"playlist_id": "PLnew"})
		})

		ref, err := srv.CreatePlaylist(ctx, "Road Trip", "synced")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ref.ID != "PLnew" || ref.Name != "Road Trip" {
			t.Errorf("unexpected ref %+v", ref)
		}
		want := `{"title":"Road Trip","description":"synced","privacy_status":"PRIVATE"}`
		if got := trimNewline((*reqs)[0].Body); got != want {
			t.Errorf("expected body %s, got %s", want, got)
		}
	})

	t.Run("CreatePlaylist without id", func(t *testing.T) {
		srv, _ := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]string{})
		})
		if _, err := srv.CreatePlaylist(ctx, "x", ""); !errors.Is(err, shared.ErrPermanentAPI) {
			t.Errorf("expected ErrPermanentAPI, got %v", err)
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		srv, _ := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, []map[string]any{{"playlistId": "PL1", "title": "Road Trip", "count": 12}})
		})
		refs, err := srv.Playlists(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(refs) != 1 || refs[0].ID != "PL1" || refs[0].TrackCount != 12 {
			t.Errorf("unexpected playlists %+v", refs)
		}
	})
}

func TestParseCount(t *testing.T) {
	tc := []struct {
		in   string
		want int
	}{
		{"1.2M subscribers", 1200000},
		{"930K", 930000},
		{"12,345 subscribers", 12345},
		{"2B", 2000000000},
		{"", 0},
		{"lots", 0},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCount(tt.in); got != tt.want {
				t.Errorf("ParseCount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
