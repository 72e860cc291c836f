package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/libsync/internal/cache"
	"github.com/desertthunder/libsync/internal/repositories"
	"github.com/desertthunder/libsync/internal/services"
	"github.com/desertthunder/libsync/internal/shared"
	"github.com/desertthunder/libsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Catalog clients are built on first use so commands that never talk to a catalog (cache, report, setup)
// work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	source     services.SourceReader
	target     services.TargetCatalog
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Source     services.SourceReader
	Target     services.TargetCatalog
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		source:     opts.Source,
		target:     opts.Target,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, cacheCommand, reportCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// LoadConfig reads the file named by --config. A missing file keeps the defaults so setup can create it.
func (r *Runner) LoadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	r.configPath = path

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		shared.ApplyLogLevel(r.logger, r.config.Log.Level, cmd.Bool("verbose"))
		r.logger.Debug("config file not found, using defaults", "path", path)
		return ctx, nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	shared.ApplyLogLevel(r.logger, config.Log.Level, cmd.Bool("verbose"))
	return ctx, nil
}

// sourceReader returns the Spotify reader, creating it from the configured credentials on first use.
func (r *Runner) sourceReader(ctx context.Context) (services.SourceReader, error) {
	if r.source != nil {
		return r.source, nil
	}
	spotify, err := services.NewSpotifyService(ctx, r.config.Credentials.Spotify, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'libsync auth spotify')", err)
	}
	r.source = spotify
	return r.source, nil
}

// targetCatalog returns the YouTube Music catalog, creating it on first use.
func (r *Runner) targetCatalog() services.TargetCatalog {
	if r.target == nil {
		r.target = services.NewYouTubeService(r.config.Credentials.YouTube, r.httpClient)
	}
	return r.target
}

// openRepository opens the configured database with its schema up to date.
func (r *Runner) openRepository(ctx context.Context) (*sql.DB, *repositories.MatchRepository, error) {
	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, repositories.NewMatchRepository(db), nil
}

// lockPath is the single-writer lock file next to the database. In-memory databases are never shared.
func (r *Runner) lockPath() string {
	path := r.config.Database.Path
	if path == "" || path == ":memory:" {
		return ""
	}
	return path + ".lock"
}

// openCacheStore opens the repository behind a sync run. An unreadable database file does not stop the run:
// the cache gets a scratch store that fails its check, so every lookup misses and nothing is written.
func (r *Runner) openCacheStore(ctx context.Context, logger *log.Logger) (*sql.DB, *repositories.MatchRepository, error) {
	db, repo, err := r.openRepository(ctx)
	if err == nil || !errors.Is(err, shared.ErrCacheCorrupt) {
		return db, repo, err
	}

	logger.Warn("cache database unreadable, syncing without it", "path", r.config.Database.Path, "err", err)
	scratch, serr := shared.OpenDatabase(ctx, shared.DatabaseConfig{Path: ":memory:"})
	if serr != nil {
		return nil, nil, fmt.Errorf("failed to open scratch database: %w", serr)
	}
	return scratch, repositories.NewUnreadableRepository(scratch, err), nil
}

// openCache opens the match cache for one run. The returned func flushes the cache and closes the database.
func (r *Runner) openCache(ctx context.Context, logger *log.Logger) (*cache.MatchCache, func(), error) {
	db, repo, err := r.openCacheStore(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	mc, err := cache.Open(ctx, cache.Options{
		Store:            repo,
		Logger:           logger,
		LockPath:         r.lockPath(),
		RetryFailedAfter: r.config.Sync.RetryFailedAfter,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := mc.Close(); err != nil {
			logger.Warn("failed to close match cache", "error", err)
		}
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
	return mc, closeFn, nil
}

// newEngine wires a sync engine against the configured catalogs.
func (r *Runner) newEngine(ctx context.Context, mc *cache.MatchCache, logger *log.Logger, dryRun bool) (*tasks.SyncEngine, error) {
	source, err := r.sourceReader(ctx)
	if err != nil {
		return nil, err
	}
	return tasks.NewSyncEngine(tasks.EngineOpts{
		Source: source,
		Target: r.targetCatalog(),
		Cache:  mc,
		Config: r.config.Sync,
		Logger: logger,
		DryRun: dryRun,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
