package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/libsync/internal/formatter"
	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/shared"
	"github.com/desertthunder/libsync/internal/tasks"
	"github.com/desertthunder/libsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// runOutput is the --json shape of a sync.
type runOutput struct {
	RunID       string              `json:"run_id"`
	DryRun      bool                `json:"dry_run"`
	Summary     tasks.Summary       `json:"summary"`
	Collections []*tasks.SyncResult `json:"collections"`
	Errors      []string            `json:"errors,omitempty"`
	ReportPath  string              `json:"report_path,omitempty"`
}

// kindsFor maps a sync subcommand name onto the kinds it syncs.
func kindsFor(name string) ([]models.CollectionKind, error) {
	if name == "all" {
		return models.CollectionKinds, nil
	}
	kind, err := models.ParseCollectionKind(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return []models.CollectionKind{kind}, nil
}

// Sync runs the sync named by the subcommand and reports the outcome.
//
// Collections that fail do not stop the run, but they make the command exit with an error once the summary
// and the unmatched report have been written.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	kinds, err := kindsFor(cmd.Name)
	if err != nil {
		return err
	}

	var sourceID string
	if cmd.Name == "playlists" {
		sourceID = cmd.String("source")
	}
	dryRun := cmd.Bool("dry-run")
	useTUI := cmd.Bool("tui")
	runID := shared.GenerateID()

	logger := shared.WithLogger(r.logger, "run_id", runID)
	if useTUI {
		fileLogger, closer := shared.NewFileLogger(r.config.Log)
		defer closer.Close()
		logger = shared.WithLogger(fileLogger, "run_id", runID)
	}

	mc, closeCache, err := r.openCache(ctx, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	engine, err := r.newEngine(ctx, mc, logger, dryRun)
	if err != nil {
		return err
	}

	logger.Info("starting sync", "kinds", kinds, "source_id", sourceID, "dry_run", dryRun)
	run := func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error) {
		if sourceID != "" {
			res, err := engine.SyncCollection(ctx, models.KindPlaylist, sourceID, progress)
			if err != nil {
				return &tasks.RunResult{Errors: []tasks.CollectionError{{Kind: models.KindPlaylist, SourceID: sourceID, Err: err}}}, ctx.Err()
			}
			return &tasks.RunResult{Results: []*tasks.SyncResult{res}, Summary: res.Summary}, nil
		}
		return engine.SyncAll(ctx, kinds, progress)
	}

	var result *tasks.RunResult
	if useTUI {
		// quitting the view stops the sync
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		model := ui.NewRunModel(ctx, run)
		if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		result, err = model.Result()
	} else {
		result, err = runWithLog(ctx, logger, run)
	}
	if result == nil {
		return err
	}

	reportPath, reportErr := r.writeReport(engine, logger)
	if reportErr != nil {
		logger.Error("failed to write unmatched report", "error", reportErr)
	}

	if export := cmd.String("export"); export != "" {
		if err := formatter.WriteExport(result, runID, export); err != nil {
			logger.Error("failed to write export", "path", export, "error", err)
		} else {
			logger.Info("export written", "path", export)
		}
	}

	if outErr := r.writeRun(cmd, runID, dryRun, result, reportPath, useTUI); outErr != nil {
		return outErr
	}

	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d collection(s) failed to sync: %w", len(result.Errors), result.Errors[0])
	}
	return nil
}

// runWithLog runs fn and mirrors its progress into the log at debug level.
func runWithLog(ctx context.Context, logger *log.Logger, fn ui.SyncFunc) (*tasks.RunResult, error) {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if update.Message != "" {
				logger.Debug(update.Message, "phase", update.Phase.String())
			}
		}
	}()

	result, err := fn(ctx, progress)
	close(progress)
	<-done
	return result, err
}

// writeReport flushes the run's unmatched items to the configured report file.
// It returns the path when a report was written.
func (r *Runner) writeReport(engine *tasks.SyncEngine, logger *log.Logger) (string, error) {
	path := r.config.Sync.ReportPath
	written, err := formatter.WriteUnmatchedReport(path, engine.DrainUnmatchedReport())
	if err != nil || !written {
		return "", err
	}
	logger.Info("unmatched report written", "path", path)
	return path, nil
}

func (r *Runner) writeRun(cmd *cli.Command, runID string, dryRun bool, result *tasks.RunResult, reportPath string, useTUI bool) error {
	if cmd.Bool("json") {
		out := runOutput{
			RunID:       runID,
			DryRun:      dryRun,
			Summary:     result.Summary,
			Collections: result.Results,
			ReportPath:  reportPath,
		}
		for _, e := range result.Errors {
			out.Errors = append(out.Errors, e.Error())
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	if !useTUI {
		if err := r.writePlain("%s\n", ui.RenderSummary(result)); err != nil {
			return err
		}
	}
	if reportPath != "" {
		return r.writePlain("Unmatched items written to %s\n", reportPath)
	}
	return nil
}
