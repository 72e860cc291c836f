package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/libsync/internal/cache"
	"github.com/desertthunder/libsync/internal/matching"
	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/services"
	"github.com/desertthunder/libsync/internal/shared"
	"golang.org/x/sync/errgroup"
)

const playlistDescription = "Synced by libsync"

// Summary counts what a sync did. Added, Removed and Failed count applied operations; in a dry run Added and
// Removed are the planned numbers.
type Summary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Retained  int `json:"retained"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
	CacheHits int `json:"cache_hits"`
	Searched  int `json:"searched"`
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.Added += o.Added
	s.Removed += o.Removed
	s.Unchanged += o.Unchanged
	s.Retained += o.Retained
	s.Unmatched += o.Unmatched
	s.Failed += o.Failed
	s.CacheHits += o.CacheHits
	s.Searched += o.Searched
}

// SyncResult is everything known about one collection after a sync.
type SyncResult struct {
	Kind      models.CollectionKind    `json:"kind"`
	SourceID  string                   `json:"source_id,omitempty"`
	TargetID  string                   `json:"target_id,omitempty"`
	Name      string                   `json:"name"`
	DryRun    bool                     `json:"dry_run"`
	Matches   []models.MatchResult     `json:"matches"`
	Unmatched []models.UnmatchedRecord `json:"unmatched,omitempty"`
	Diff      models.CollectionDiff    `json:"diff"`
	Execution *ExecutionReport         `json:"execution,omitempty"`
	Summary   Summary                  `json:"summary"`
}

// CollectionError is a collection that could not be synced.
type CollectionError struct {
	Kind     models.CollectionKind
	SourceID string
	Err      error
}

func (e CollectionError) Error() string {
	if e.SourceID != "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.SourceID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e CollectionError) Unwrap() error { return e.Err }

// RunResult collects the outcome of [SyncEngine.SyncAll].
type RunResult struct {
	Results []*SyncResult
	Errors  []CollectionError
	Summary Summary
}

// EngineOpts wires a [SyncEngine].
type EngineOpts struct {
	Source   services.SourceReader
	Target   services.TargetCatalog
	Cache    *cache.MatchCache
	Config   shared.SyncConfig
	Logger   *log.Logger
	Reporter *Reporter // defaults to a new reporter named after the catalogs
	DryRun   bool
}

// SyncEngine brings target collections in line with the source library.
type SyncEngine struct {
	source   services.SourceReader
	target   services.TargetCatalog
	cache    *cache.MatchCache
	matcher  *matching.Matcher
	exec     *Executor
	reporter *Reporter
	cfg      shared.SyncConfig
	logger   *log.Logger
	dryRun   bool
}

// NewSyncEngine validates opts before any sync work is done.
//
// Missing catalogs wrap [shared.ErrMissingCredentials]; bad settings wrap [shared.ErrInvalidConfig].
func NewSyncEngine(opts EngineOpts) (*SyncEngine, error) {
	if opts.Source == nil || opts.Target == nil {
		return nil, fmt.Errorf("%w: source and target catalogs are required", shared.ErrMissingCredentials)
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("%w: match cache is required", shared.ErrInvalidConfig)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Reporter == nil {
		opts.Reporter = NewReporter(opts.Source.Name(), opts.Target.Name())
	}

	return &SyncEngine{
		source:   opts.Source,
		target:   opts.Target,
		cache:    opts.Cache,
		matcher:  matching.NewMatcher(MatcherConfig(opts.Config)),
		exec:     NewExecutor(opts.Target, LimitsFromConfig(opts.Config), opts.Logger),
		reporter: opts.Reporter,
		cfg:      opts.Config,
		logger:   opts.Logger.WithPrefix("sync"),
		dryRun:   opts.DryRun,
	}, nil
}

// MatcherConfig extracts the matcher settings from the [sync] section.
func MatcherConfig(cfg shared.SyncConfig) matching.Config {
	return matching.Config{
		FuzzyThresholdTrack:  cfg.FuzzyThresholdTrack,
		FuzzyThresholdAlbum:  cfg.FuzzyThresholdAlbum,
		FuzzyThresholdArtist: cfg.FuzzyThresholdArtist,
		ExactThreshold:       cfg.ExactThreshold,
		EnableFuzzy:          cfg.EnableFuzzy,
		DurationToleranceMs:  cfg.DurationToleranceMs,
	}
}

// Policy returns the configured mirror policy for kind.
func (e *SyncEngine) Policy(kind models.CollectionKind) models.MirrorPolicy {
	var p string
	switch kind {
	case models.KindPlaylist:
		p = e.cfg.Mirror.Playlists
	case models.KindFavorites:
		p = e.cfg.Mirror.Favorites
	case models.KindAlbums:
		p = e.cfg.Mirror.Albums
	case models.KindArtists:
		p = e.cfg.Mirror.Artists
	}
	return models.MirrorPolicy(p)
}

// DrainUnmatchedReport renders the consolidated unmatched report and resets the reporter. Call it once, after
// every collection has been processed.
func (e *SyncEngine) DrainUnmatchedReport() string {
	text := e.reporter.Flush()
	e.reporter.Reset()
	return text
}

// SyncCollection brings one target collection in line with its source. sourceID names the playlist and is
// ignored for library-wide kinds.
func (e *SyncEngine) SyncCollection(ctx context.Context, kind models.CollectionKind, sourceID string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	logger := e.logger.With("kind", kind.String())
	if sourceID != "" {
		logger = logger.With("source_id", sourceID)
	}

	sendProgress(progress, fetchSourceUpdate(kind, sourceID))
	src, err := e.source.FetchCollection(ctx, kind, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source %s: %w", kind, err)
	}

	result := &SyncResult{Kind: kind, SourceID: src.ID, Name: src.Name, DryRun: e.dryRun}

	targetID, exists, err := e.resolveTarget(ctx, src, progress)
	if err != nil {
		return nil, err
	}
	result.TargetID = targetID

	current := &models.TargetCollection{Kind: kind, ID: targetID}
	if exists {
		sendProgress(progress, fetchTargetUpdate(src.Name))
		current, err = e.target.FetchCollection(ctx, kind, targetID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch target %s: %w", kind, err)
		}
	}

	stats := e.matchAll(ctx, src, current, result, progress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := make([]string, 0, len(result.Matches))
	for _, m := range result.Matches {
		if m.Matched() {
			matched = append(matched, m.TargetID)
		}
	}

	result.Diff = Plan(kind, matched, current, e.Policy(kind))
	sendProgress(progress, planUpdate(result.Diff))

	added, removed, unchanged := result.Diff.Counts()
	result.Summary = Summary{
		Unchanged: unchanged,
		Retained:  len(result.Diff.Retained),
		Unmatched: len(result.Unmatched),
		CacheHits: stats.hits,
		Searched:  stats.searched,
	}

	if e.dryRun {
		result.Summary.Added, result.Summary.Removed = added, removed
		logger.Info("dry run planned", "add", added, "remove", removed, "unchanged", unchanged, "unmatched", len(result.Unmatched))
		sendProgress(progress, doneUpdate(result))
		return result, nil
	}

	if !result.Diff.Empty() {
		sendProgress(progress, applyUpdate(added+removed))
	}
	if kind.Ordered() {
		result.Execution = e.exec.ExecuteScript(ctx, kind, targetID, current.Items, result.Diff.Script)
	} else {
		result.Execution = e.exec.Execute(ctx, unorderedOps(kind, targetID, result.Diff, current))
	}
	e.evictMissing(src, result)

	result.Summary.Added, result.Summary.Removed, result.Summary.Failed = result.Execution.Counts()
	logger.Info("synced",
		"added", result.Summary.Added,
		"removed", result.Summary.Removed,
		"unchanged", unchanged,
		"unmatched", result.Summary.Unmatched,
		"failed", result.Summary.Failed,
	)
	sendProgress(progress, doneUpdate(result))
	return result, nil
}

// resolveTarget finds the target collection for src. Playlists resolve through the configured mapping, then by
// name, and are created otherwise; a dry run never creates one.
func (e *SyncEngine) resolveTarget(ctx context.Context, src *models.SourceCollection, progress chan<- ProgressUpdate) (string, bool, error) {
	if src.Kind != models.KindPlaylist {
		return "", true, nil
	}

	sendProgress(progress, resolveTargetUpdate(src.Name))
	for _, m := range e.cfg.Playlists {
		if m.SourceID == src.ID && m.TargetID != "" {
			return m.TargetID, true, nil
		}
	}

	playlists, err := e.target.Playlists(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to list target playlists: %w", err)
	}
	for _, p := range playlists {
		if p.Name == src.Name {
			return p.ID, true, nil
		}
	}

	if e.dryRun {
		return "", false, nil
	}
	ref, err := e.target.CreatePlaylist(ctx, src.Name, playlistDescription)
	if err != nil {
		return "", false, err
	}
	e.logger.Info("created target playlist", "name", ref.Name, "id", ref.ID)
	sendProgress(progress, createPlaylistUpdate(ref))
	// A new playlist is known to be empty.
	return ref.ID, false, nil
}

type matchStats struct {
	hits     int
	searched int
}

// matchAll resolves every source entity over a bounded worker pool. Results keep source order.
func (e *SyncEngine) matchAll(ctx context.Context, src *models.SourceCollection, current *models.TargetCollection, result *SyncResult, progress chan<- ProgressUpdate) matchStats {
	entities := src.Entities
	results := make([]models.MatchResult, len(entities))
	searched := make([]bool, len(entities))

	var known []models.Candidate
	for _, item := range current.Items {
		if item.Candidate != nil {
			known = append(known, *item.Candidate)
		}
	}

	jobs := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		step int
	)
	for range max(e.cfg.MaxConcurrentCalls, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], searched[i] = e.matchOne(ctx, entities[i], known, src.Name)

				mu.Lock()
				step++
				sendProgress(progress, matchUpdate(step, len(entities), entities[i], results[i]))
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range entities {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	var stats matchStats
	result.Matches = results
	for i, res := range results {
		if searched[i] {
			stats.searched++
		}
		if res.MatchedVia == models.ViaCache {
			stats.hits++
		}
		if !res.Matched() && res.SourceID != "" {
			result.Unmatched = append(result.Unmatched, unmatchedRecord(entities[i], src.Name))
		}
	}
	return stats
}

// matchOne looks in the cache, then the current target collection, then searches the catalog.
// It reports whether a search was issued.
func (e *SyncEngine) matchOne(ctx context.Context, entity models.SourceEntity, known []models.Candidate, collection string) (models.MatchResult, bool) {
	if ctx.Err() != nil {
		return models.MatchResult{}, false
	}

	if entry, ok := e.cache.Lookup(ctx, entity.Type, entity.ID); ok {
		return models.MatchResult{
			SourceID:   entity.ID,
			TargetID:   entry.TargetID,
			Confidence: entry.Confidence,
			MatchedVia: models.ViaCache,
		}, false
	}

	if len(known) > 0 {
		if res := e.matcher.Match(entity, known); res.Matched() {
			e.remember(entity, res)
			return res, false
		}
	}

	if e.cache.ShouldSkip(ctx, entity.Type, entity.ID) {
		e.logger.Debug("skipping recently failed entity", "entity", entity.DisplayName())
		e.reporter.Record(unmatchedRecord(entity, collection))
		return models.MatchResult{SourceID: entity.ID, MatchedVia: models.ViaNone}, false
	}

	// Title first, then the track's album, then the full title with every artist.
	queries := []string{matching.SearchQuery(entity), matching.AlbumQuery(entity), matching.FallbackQuery(entity)}
	res := models.MatchResult{SourceID: entity.ID, MatchedVia: models.ViaNone}
	var candidates []models.Candidate
	var searchErr error
	for i, q := range queries {
		if q == "" && i > 0 {
			continue
		}
		more, err := e.search(ctx, entity.Type, q)
		if err != nil {
			searchErr = err
			break
		}
		candidates = append(candidates, more...)
		if res = e.matcher.Match(entity, candidates); res.Matched() {
			break
		}
	}

	switch {
	case res.Matched():
		e.remember(entity, res)
	case searchErr != nil:
		// A failed search says nothing about whether a match exists.
		e.logger.Warn("search failed", "entity", entity.DisplayName(), "err", searchErr)
		e.reporter.Record(unmatchedRecord(entity, collection))
	default:
		e.logger.Debug("no match", "entity", entity.DisplayName(), "best", res.Confidence)
		if !e.dryRun {
			e.cache.RecordFailure(ctx, entity.Type, entity.ID)
		}
		e.reporter.Record(unmatchedRecord(entity, collection))
	}
	return res, true
}

func (e *SyncEngine) search(ctx context.Context, t models.EntityType, query string) ([]models.Candidate, error) {
	var candidates []models.Candidate
	res, _ := e.exec.Call(ctx, "search "+query, func(ctx context.Context) services.OpResult {
		var err error
		candidates, err = e.target.Search(ctx, t, query)
		return services.ResultOf(err)
	})
	if res.Outcome != services.Success {
		return nil, res.Err
	}
	return candidates, nil
}

func (e *SyncEngine) remember(entity models.SourceEntity, res models.MatchResult) {
	if e.dryRun {
		return
	}
	err := e.cache.Store(models.CacheEntry{
		EntityType: entity.Type,
		SourceID:   entity.ID,
		TargetID:   res.TargetID,
		Confidence: res.Confidence,
	})
	if err != nil {
		e.logger.Warn("not caching match", "entity", entity.DisplayName(), "err", err)
	}
}

// evictMissing drops cached matches whose target id the catalog reported as gone.
func (e *SyncEngine) evictMissing(src *models.SourceCollection, result *SyncResult) {
	gone := make(map[string]bool)
	for _, r := range result.Execution.Failures() {
		if r.Op.Kind == OpAdd && errors.Is(r.Err, services.ErrNotFound) {
			gone[r.Op.TargetID] = true
		}
	}
	if len(gone) == 0 {
		return
	}
	for i, m := range result.Matches {
		if gone[m.TargetID] {
			e.logger.Info("evicting stale match", "source_id", m.SourceID, "target_id", m.TargetID)
			e.cache.Evict(src.Entities[i].Type, m.SourceID)
		}
	}
}

func unorderedOps(kind models.CollectionKind, collectionID string, diff models.CollectionDiff, current *models.TargetCollection) []Operation {
	items := make(map[string]models.CollectionItem, len(current.Items))
	for _, item := range current.Items {
		if _, ok := items[item.TargetID]; !ok {
			items[item.TargetID] = item
		}
	}

	ops := make([]Operation, 0, len(diff.ToAdd)+len(diff.ToRemove))
	for _, id := range diff.ToAdd {
		ops = append(ops, Operation{Kind: OpAdd, Collection: kind, CollectionID: collectionID, TargetID: id, Position: -1})
	}
	for _, id := range diff.ToRemove {
		ops = append(ops, Operation{Kind: OpRemove, Collection: kind, CollectionID: collectionID, TargetID: id, Position: -1, Item: items[id]})
	}
	return ops
}

func unmatchedRecord(e models.SourceEntity, collection string) models.UnmatchedRecord {
	rec := models.UnmatchedRecord{EntityType: e.Type, SourceID: e.ID, DisplayName: e.DisplayName()}
	if e.Type == models.EntityTrack {
		rec.Context = collection
	}
	return rec
}

// SyncAll syncs every requested kind. Kinds run concurrently; playlists run one after another.
//
// A collection that fails is recorded in [RunResult.Errors] and does not stop the others. The returned error is
// only set when ctx ended.
func (e *SyncEngine) SyncAll(ctx context.Context, kinds []models.CollectionKind, progress chan<- ProgressUpdate) (*RunResult, error) {
	run := &RunResult{}
	var mu sync.Mutex
	record := func(res *SyncResult, kind models.CollectionKind, id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			e.logger.Error("collection failed", "kind", kind.String(), "source_id", id, "err", err)
			run.Errors = append(run.Errors, CollectionError{Kind: kind, SourceID: id, Err: err})
			return
		}
		run.Results = append(run.Results, res)
	}

	var g errgroup.Group
	for _, kind := range kinds {
		g.Go(func() error {
			if kind != models.KindPlaylist {
				res, err := e.SyncCollection(ctx, kind, "", progress)
				record(res, kind, "", err)
				return nil
			}

			ids, err := e.playlistIDs(ctx)
			if err != nil {
				record(nil, kind, "", err)
				return nil
			}
			for _, id := range ids {
				if ctx.Err() != nil {
					return nil
				}
				res, err := e.SyncCollection(ctx, kind, id, progress)
				record(res, kind, id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(run.Results, func(a, b *SyncResult) int {
		return int(a.Kind) - int(b.Kind)
	})
	for _, res := range run.Results {
		run.Summary.Add(res.Summary)
	}
	return run, ctx.Err()
}

// playlistIDs returns the configured playlist mappings, or every owned playlist not excluded by id or name.
func (e *SyncEngine) playlistIDs(ctx context.Context) ([]string, error) {
	if len(e.cfg.Playlists) > 0 {
		ids := make([]string, len(e.cfg.Playlists))
		for i, m := range e.cfg.Playlists {
			ids[i] = m.SourceID
		}
		return ids, nil
	}

	owned, err := e.source.OwnedPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source playlists: %w", err)
	}
	var ids []string
	for _, p := range owned {
		if slices.Contains(e.cfg.ExcludedPlaylists, p.ID) || slices.Contains(e.cfg.ExcludedPlaylists, p.Name) {
			e.logger.Info("skipping excluded playlist", "name", p.Name)
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}
