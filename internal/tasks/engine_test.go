package tasks

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/desertthunder/libsync/internal/cache"
	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/repositories"
	"github.com/desertthunder/libsync/internal/shared"
	tu "github.com/desertthunder/libsync/internal/testing"
)

var (
	bohemian = models.SourceEntity{Type: models.EntityTrack, ID: "sp:1", Title: "Bohemian Rhapsody", ArtistNames: []string{"Queen"}, DurationMs: 355000}
	pressure = models.SourceEntity{Type: models.EntityTrack, ID: "sp:2", Title: "Under Pressure", ArtistNames: []string{"Queen", "David Bowie"}, DurationMs: 248000}
	heroes   = models.SourceEntity{Type: models.EntityTrack, ID: "sp:3", Title: "Heroes", ArtistNames: []string{"David Bowie"}, DurationMs: 371000}
	aphex    = models.SourceEntity{Type: models.EntityArtist, ID: "ar:1", Title: "Aphex Twin"}
	boc      = models.SourceEntity{Type: models.EntityArtist, ID: "ar:2", Title: "Boards of Canada"}

	testCatalog = []models.Candidate{
		{Type: models.EntityTrack, ID: "yt:a", Title: "Bohemian Rhapsody - Remastered 2011", ArtistNames: []string{"Queen"}, DurationMs: 354000},
		{Type: models.EntityTrack, ID: "yt:b", Title: "Bohemian Rhapsody (Live)", ArtistNames: []string{"Queen"}, DurationMs: 390000},
		{Type: models.EntityTrack, ID: "yt:c", Title: "Under Pressure", ArtistNames: []string{"Queen & David Bowie"}, DurationMs: 248000},
		{Type: models.EntityTrack, ID: "yt:d", Title: "Heroes", ArtistNames: []string{"David Bowie"}, DurationMs: 371000},
		{Type: models.EntityArtist, ID: "UC-aphex", Title: "Aphex Twin", FollowerCount: 900000},
	}
)

type harness struct {
	source *tu.FakeSource
	target *tu.FakeTarget
	cache  *cache.MatchCache
	cfg    shared.SyncConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := shared.OpenDatabase(ctx, shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mc, err := cache.Open(ctx, cache.Options{
		Store:            repositories.NewMatchRepository(db),
		Logger:           shared.NewLogger(io.Discard),
		RetryFailedAfter: shared.DefaultConfig().Sync.RetryFailedAfter,
	})
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { mc.Close() })

	cfg := shared.DefaultConfig().Sync
	cfg.BackoffBaseMs, cfg.MaxBackoffMs, cfg.RequestsPerSecond = 0, 0, 0

	return &harness{source: tu.NewFakeSource(), target: tu.NewFakeTarget(testCatalog...), cache: mc, cfg: cfg}
}

func (h *harness) engine(t *testing.T, dryRun bool) *SyncEngine {
	t.Helper()
	e, err := NewSyncEngine(EngineOpts{
		Source: h.source,
		Target: h.target,
		Cache:  h.cache,
		Config: h.cfg,
		Logger: shared.NewLogger(io.Discard),
		DryRun: dryRun,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func TestNewSyncEngine(t *testing.T) {
	h := newHarness(t)

	tc := []struct {
		name   string
		opts   EngineOpts
		target error
	}{
		{name: "missing source", opts: EngineOpts{Target: h.target, Cache: h.cache, Config: h.cfg}, target: shared.ErrMissingCredentials},
		{name: "missing target", opts: EngineOpts{Source: h.source, Cache: h.cache, Config: h.cfg}, target: shared.ErrMissingCredentials},
		{name: "missing cache", opts: EngineOpts{Source: h.source, Target: h.target, Config: h.cfg}, target: shared.ErrInvalidConfig},
		{
			name: "bad threshold",
			opts: EngineOpts{Source: h.source, Target: h.target, Cache: h.cache, Config: func() shared.SyncConfig {
				c := h.cfg
				c.FuzzyThresholdTrack = 1.5
				return c
			}()},
			target: shared.ErrInvalidConfig,
		},
		{
			name: "unknown policy",
			opts: EngineOpts{Source: h.source, Target: h.target, Cache: h.cache, Config: func() shared.SyncConfig {
				c := h.cfg
				c.Mirror.Albums = "sometimes"
				return c
			}()},
			target: shared.ErrInvalidConfig,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSyncEngine(tt.opts); !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestSyncCollectionFavorites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.Set(models.SourceCollection{Kind: models.KindFavorites, Name: "Liked Songs", Entities: []models.SourceEntity{bohemian, pressure}})
	h.target.SetCollection(models.KindFavorites, "", "Liked Music", "yt:manual")

	first, err := h.engine(t, false).SyncCollection(ctx, models.KindFavorites, "", nil)
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	t.Run("Matches the remastered track", func(t *testing.T) {
		m := first.Matches[0]
		if m.TargetID != "yt:a" || m.MatchedVia != models.ViaFresh {
			t.Errorf("expected fresh match to yt:a, got %+v", m)
		}
	})

	t.Run("Additive by default", func(t *testing.T) {
		got := h.target.IDs(models.KindFavorites, "")
		if !slices.Contains(got, "yt:manual") {
			t.Errorf("manually liked track should be kept, got %v", got)
		}
		if first.Summary.Added != 2 || first.Summary.Removed != 0 || first.Summary.Retained != 1 {
			t.Errorf("unexpected summary %+v", first.Summary)
		}
	})

	searches := h.target.SearchCount()
	second, err := h.engine(t, false).SyncCollection(ctx, models.KindFavorites, "", nil)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	t.Run("Second run is empty", func(t *testing.T) {
		if !second.Diff.Empty() {
			t.Errorf("expected empty diff, got %+v", second.Diff)
		}
	})

	t.Run("Second run reuses the cache", func(t *testing.T) {
		if h.target.SearchCount() != searches {
			t.Errorf("expected no new searches, got %d more", h.target.SearchCount()-searches)
		}
		for _, m := range second.Matches {
			if m.MatchedVia != models.ViaCache {
				t.Errorf("expected cache hit, got %+v", m)
			}
		}
		if second.Summary.CacheHits != 2 || second.Summary.Searched != 0 {
			t.Errorf("unexpected summary %+v", second.Summary)
		}
	})
}

func TestSyncCollectionAlbumSearch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	starman := models.SourceEntity{
		Type: models.EntityTrack, ID: "sp:starman", Title: "Starman", ArtistNames: []string{"David Bowie"},
		AlbumName: "The Rise and Fall of Ziggy Stardust and the Spiders from Mars (2012 Remaster)", DurationMs: 254000,
	}
	albumQuery := "The Rise and Fall of Ziggy Stardust and the Spiders from Mars David Bowie"
	h.target.Results["Starman David Bowie"] = nil
	h.target.Results[albumQuery] = []models.Candidate{
		{Type: models.EntityTrack, ID: "yt:moonage", Title: "Moonage Daydream", ArtistNames: []string{"David Bowie"}, DurationMs: 280000},
		{Type: models.EntityTrack, ID: "yt:starman", Title: "Starman", ArtistNames: []string{"David Bowie"}, DurationMs: 254000},
	}
	h.source.Set(models.SourceCollection{Kind: models.KindFavorites, Name: "Liked Songs", Entities: []models.SourceEntity{starman}})

	res, err := h.engine(t, false).SyncCollection(ctx, models.KindFavorites, "", nil)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(res.Matches) != 1 || res.Matches[0].TargetID != "yt:starman" || res.Matches[0].MatchedVia != models.ViaFresh {
		t.Fatalf("expected the album search to find the track, got %+v", res.Matches)
	}
	if want := []string{"Starman David Bowie", albumQuery}; !slices.Equal(h.target.Searches, want) {
		t.Errorf("expected searches %q, got %q", want, h.target.Searches)
	}
	if ids := h.target.IDs(models.KindFavorites, ""); !slices.Equal(ids, []string{"yt:starman"}) {
		t.Errorf("unexpected liked songs %v", ids)
	}
}

func TestSyncCollectionPlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("Mirrors an existing playlist by name", func(t *testing.T) {
		h := newHarness(t)
		h.source.Set(models.SourceCollection{Kind: models.KindPlaylist, ID: "sp-pl", Name: "Road Trip", Entities: []models.SourceEntity{bohemian, pressure, heroes}})
		h.target.SetCollection(models.KindPlaylist, "PL-road", "Road Trip", "yt:d", "yt:x")

		res, err := h.engine(t, false).SyncCollection(ctx, models.KindPlaylist, "sp-pl", nil)
		if err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if res.TargetID != "PL-road" {
			t.Errorf("expected the same-named playlist, got %s", res.TargetID)
		}
		if got := h.target.IDs(models.KindPlaylist, "PL-road"); !slices.Equal(got, []string{"yt:a", "yt:c", "yt:d"}) {
			t.Errorf("unexpected playlist %v", got)
		}
		// Heroes is already in the playlist, so only two searches are needed.
		if res.Summary.Searched != 2 {
			t.Errorf("expected 2 searches, got %d", res.Summary.Searched)
		}
		if res.Summary.Added != 2 || res.Summary.Removed != 1 || res.Summary.Unchanged != 1 {
			t.Errorf("unexpected summary %+v", res.Summary)
		}

		again, err := h.engine(t, false).SyncCollection(ctx, models.KindPlaylist, "sp-pl", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !again.Diff.Empty() || len(again.Execution.Results) != 0 {
			t.Errorf("second run should change nothing, got %+v", again.Diff.Script)
		}
	})

	t.Run("Creates a missing playlist", func(t *testing.T) {
		h := newHarness(t)
		h.source.Set(models.SourceCollection{Kind: models.KindPlaylist, ID: "sp-pl", Name: "Night Drive", Entities: []models.SourceEntity{heroes, bohemian, heroes}})

		res, err := h.engine(t, false).SyncCollection(ctx, models.KindPlaylist, "sp-pl", nil)
		if err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if res.TargetID == "" {
			t.Fatal("expected a created playlist")
		}
		if got := h.target.IDs(models.KindPlaylist, res.TargetID); !slices.Equal(got, []string{"yt:d", "yt:a", "yt:d"}) {
			t.Errorf("duplicates should be kept in order, got %v", got)
		}
	})

	t.Run("Uses the configured mapping", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Playlists = []shared.PlaylistMapping{{SourceID: "sp-pl", TargetID: "PL-pinned"}}
		h.source.Set(models.SourceCollection{Kind: models.KindPlaylist, ID: "sp-pl", Name: "Road Trip", Entities: []models.SourceEntity{heroes}})
		h.target.SetCollection(models.KindPlaylist, "PL-pinned", "Something Else")
		h.target.SetCollection(models.KindPlaylist, "PL-road", "Road Trip")

		res, err := h.engine(t, false).SyncCollection(ctx, models.KindPlaylist, "sp-pl", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.TargetID != "PL-pinned" {
			t.Errorf("expected mapped playlist, got %s", res.TargetID)
		}
	})

	t.Run("Dry run changes nothing", func(t *testing.T) {
		h := newHarness(t)
		h.source.Set(models.SourceCollection{Kind: models.KindPlaylist, ID: "sp-pl", Name: "Night Drive", Entities: []models.SourceEntity{heroes, bohemian}})

		res, err := h.engine(t, true).SyncCollection(ctx, models.KindPlaylist, "sp-pl", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !res.DryRun || res.Execution != nil || res.Summary.Added != 2 {
			t.Errorf("unexpected dry run result %+v", res.Summary)
		}
		if len(h.target.Calls) != 0 {
			t.Errorf("dry run should not mutate, got %v", h.target.Calls)
		}
		if refs, _ := h.target.Playlists(ctx); len(refs) != 0 {
			t.Errorf("dry run should not create playlists, got %v", refs)
		}
		if _, ok := h.cache.Lookup(ctx, models.EntityTrack, heroes.ID); ok {
			t.Error("dry run should not write the cache")
		}
	})
}

func TestSyncCollectionArtists(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.Set(models.SourceCollection{Kind: models.KindArtists, Name: "Followed Artists", Entities: []models.SourceEntity{aphex, boc}})

	e := h.engine(t, false)
	res, err := e.SyncCollection(ctx, models.KindArtists, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if res.Matches[1].Matched() {
		t.Errorf("Boards of Canada should not match, got %+v", res.Matches[1])
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].SourceID != boc.ID {
		t.Errorf("unexpected unmatched %+v", res.Unmatched)
	}

	report := e.DrainUnmatchedReport()
	if !strings.Contains(report, "ARTISTS:\n") || !strings.Contains(report, "Boards of Canada") {
		t.Errorf("report should list the artist:\n%s", report)
	}
	if e.DrainUnmatchedReport() != "" {
		t.Error("report should be drained")
	}

	t.Run("Recent failures are not searched again", func(t *testing.T) {
		before := h.target.SearchCount()
		again := h.engine(t, false)
		res, err := again.SyncCollection(ctx, models.KindArtists, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if h.target.SearchCount() != before {
			t.Errorf("expected no searches, got %d", h.target.SearchCount()-before)
		}
		if res.Summary.Unmatched != 1 || !strings.Contains(again.DrainUnmatchedReport(), "Boards of Canada") {
			t.Error("skipped entity should still be reported")
		}
	})
}

func TestSyncCollectionFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Partial failure", func(t *testing.T) {
		h := newHarness(t)
		h.source.Set(models.SourceCollection{Kind: models.KindFavorites, Name: "Liked Songs", Entities: []models.SourceEntity{bohemian, pressure, heroes}})
		h.target.Fail("yt:c", tu.Permanent())

		res, err := h.engine(t, false).SyncCollection(ctx, models.KindFavorites, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Summary.Added != 2 || res.Summary.Failed != 1 {
			t.Errorf("unexpected summary %+v", res.Summary)
		}
		if got := h.target.IDs(models.KindFavorites, ""); !slices.Contains(got, "yt:a") || !slices.Contains(got, "yt:d") {
			t.Errorf("other adds should apply, got %v", got)
		}
		if _, ok := h.cache.Lookup(ctx, models.EntityTrack, pressure.ID); !ok {
			t.Error("a plain permanent failure must not evict the match")
		}
	})

	t.Run("Not found evicts the cached match", func(t *testing.T) {
		h := newHarness(t)
		h.source.Set(models.SourceCollection{Kind: models.KindFavorites, Name: "Liked Songs", Entities: []models.SourceEntity{bohemian, pressure}})
		h.target.Fail("yt:a", tu.Gone())

		res, err := h.engine(t, false).SyncCollection(ctx, models.KindFavorites, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Summary.Failed != 1 {
			t.Errorf("expected one failure, got %+v", res.Summary)
		}
		if _, ok := h.cache.Lookup(ctx, models.EntityTrack, bohemian.ID); ok {
			t.Error("stale match should be evicted")
		}
		if _, ok := h.cache.Lookup(ctx, models.EntityTrack, pressure.ID); !ok {
			t.Error("unrelated match should stay cached")
		}
	})

	t.Run("Search failure reports without memo", func(t *testing.T) {
		h := newHarness(t)
		h.source.Set(models.SourceCollection{Kind: models.KindArtists, Entities: []models.SourceEntity{aphex}})
		h.target.SearchErr = shared.ErrPermanentAPI

		e := h.engine(t, false)
		res, err := e.SyncCollection(ctx, models.KindArtists, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Summary.Unmatched != 1 {
			t.Errorf("expected the artist reported unmatched, got %+v", res.Summary)
		}
		if h.cache.ShouldSkip(ctx, models.EntityArtist, aphex.ID) {
			t.Error("a failed search must not be remembered as a failed match")
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		h := newHarness(t)
		h.source.Set(models.SourceCollection{Kind: models.KindFavorites, Entities: []models.SourceEntity{bohemian, pressure}})

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := h.engine(t, false).SyncCollection(cctx, models.KindFavorites, "", nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(h.target.Calls) != 0 {
			t.Errorf("nothing should be applied, got %v", h.target.Calls)
		}
	})
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.ExcludedPlaylists = []string{"Skip Me"}
	h.source.Set(models.SourceCollection{Kind: models.KindPlaylist, ID: "sp-1", Name: "Road Trip", Entities: []models.SourceEntity{bohemian}})
	h.source.Set(models.SourceCollection{Kind: models.KindPlaylist, ID: "sp-2", Name: "Skip Me", Entities: []models.SourceEntity{heroes}})
	h.source.Set(models.SourceCollection{Kind: models.KindFavorites, Name: "Liked Songs", Entities: []models.SourceEntity{pressure}})
	h.source.Set(models.SourceCollection{Kind: models.KindArtists, Name: "Followed Artists", Entities: []models.SourceEntity{aphex, boc}})

	progress := make(chan ProgressUpdate, 256)
	e := h.engine(t, false)
	run, err := e.SyncAll(ctx, models.CollectionKinds, progress)
	if err != nil {
		t.Fatal(err)
	}

	if len(run.Errors) != 0 {
		t.Errorf("unexpected errors %v", run.Errors)
	}
	if len(run.Results) != 4 {
		t.Fatalf("expected 4 results (1 playlist, favorites, albums, artists), got %d", len(run.Results))
	}
	for i := 1; i < len(run.Results); i++ {
		if run.Results[i-1].Kind > run.Results[i].Kind {
			t.Errorf("results should be ordered by kind")
		}
	}
	if run.Summary.Added != 3 || run.Summary.Unmatched != 1 {
		t.Errorf("unexpected summary %+v", run.Summary)
	}
	if len(progress) == 0 {
		t.Error("expected progress updates")
	}

	t.Run("Failed collections are collected", func(t *testing.T) {
		h.cfg.Playlists = []shared.PlaylistMapping{{SourceID: "sp-missing"}}
		run, err := h.engine(t, false).SyncAll(ctx, []models.CollectionKind{models.KindPlaylist, models.KindFavorites}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(run.Errors) != 1 || !errors.Is(run.Errors[0], shared.ErrPlaylistNotFound) {
			t.Errorf("expected the missing playlist error, got %v", run.Errors)
		}
		if len(run.Results) != 1 || run.Results[0].Kind != models.KindFavorites {
			t.Errorf("favorites should still sync, got %d results", len(run.Results))
		}
	})
}
