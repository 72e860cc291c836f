package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
	"github.com/desertthunder/libsync/internal/ui"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"
)

func entityTypes(cmd *cli.Command) ([]models.EntityType, error) {
	name := cmd.String("type")
	if name == "" {
		return nil, nil
	}
	t, err := models.ParseEntityType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return []models.EntityType{t}, nil
}

// lockCache takes the cache lock for a command that edits entries, so it never races a running sync.
func (r *Runner) lockCache() (func(), error) {
	path := r.lockPath()
	if path == "" {
		return func() {}, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock match cache: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: match cache is in use by a running sync", shared.ErrServiceUnavailable)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release cache lock", "error", err)
		}
	}, nil
}

// CacheList prints cached matches, optionally for one entity type.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	types, err := entityTypes(cmd)
	if err != nil {
		return err
	}

	db, repo, err := r.openRepository(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, skipped, err := repo.List(ctx, types...)
	if err != nil {
		return err
	}
	if skipped > 0 {
		r.logger.Warn("skipped unreadable cache rows", "count", skipped)
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	if len(entries) == 0 {
		return r.writePlain("Match cache is empty\n")
	}
	r.writePlain("%s\n\n", ui.Title(fmt.Sprintf("%d cached matches", len(entries))))
	for _, e := range entries {
		r.writePlain("%-7s %s → %s  %s\n", e.EntityType, e.SourceID, e.TargetID,
			ui.Muted(fmt.Sprintf("%.3f, %s", e.Confidence, e.CreatedAt.Local().Format(time.DateOnly))))
	}
	return nil
}

// CacheEvict forgets the match and failure memo for one source entity.
func (r *Runner) CacheEvict(ctx context.Context, cmd *cli.Command) error {
	sourceID := cmd.StringArg("source-id")
	if sourceID == "" {
		return fmt.Errorf("%w: source-id", shared.ErrMissingArgument)
	}
	types, err := entityTypes(cmd)
	if err != nil {
		return err
	}

	unlock, err := r.lockCache()
	if err != nil {
		return err
	}
	defer unlock()

	db, repo, err := r.openRepository(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	key := models.CacheKey{EntityType: types[0], SourceID: sourceID}
	if err := repo.Delete(ctx, key); err != nil {
		return err
	}
	if err := repo.DeleteFailure(ctx, key); err != nil {
		return err
	}
	r.logger.Info("evicted cache entry", "key", key.String())
	return r.writePlain("%s Evicted %s\n", ui.Success("✓"), key)
}

// CacheClear removes cached matches and failure memos.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	types, err := entityTypes(cmd)
	if err != nil {
		return err
	}

	unlock, err := r.lockCache()
	if err != nil {
		return err
	}
	defer unlock()

	db, repo, err := r.openRepository(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := repo.Clear(ctx, types...)
	if err != nil {
		return err
	}
	r.logger.Info("cleared match cache", "removed", removed)
	return r.writePlain("%s Removed %d cached matches\n", ui.Success("✓"), removed)
}

// CacheFailures lists failure memos and when each entity will be searched again.
func (r *Runner) CacheFailures(ctx context.Context, cmd *cli.Command) error {
	db, repo, err := r.openRepository(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	failures, err := repo.ListFailures(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(failures, true)
	}

	if len(failures) == 0 {
		return r.writePlain("No failure memos\n")
	}
	r.writePlain("%s\n\n", ui.Title(fmt.Sprintf("%d entities waiting to be searched again", len(failures))))
	for _, f := range failures {
		r.writePlain("%-7s %s  %s\n", f.EntityType, f.SourceID,
			ui.Muted("retry after "+f.NextRetry.Local().Format(time.DateTime)))
	}
	return nil
}
