package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/libsync/internal/shared"
	"github.com/desertthunder/libsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI lets the user pick a collection and syncs it with live progress.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	dryRun := cmd.Bool("dry-run")
	runID := shared.GenerateID()

	// the terminal belongs to the TUI, so logs go to the rotating file
	fileLogger, closer := shared.NewFileLogger(r.config.Log)
	defer closer.Close()
	logger := shared.WithLogger(fileLogger, "run_id", runID)

	mc, closeCache, err := r.openCache(ctx, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	engine, err := r.newEngine(ctx, mc, logger, dryRun)
	if err != nil {
		return err
	}
	source, err := r.sourceReader(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, source, engine, dryRun)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	path, err := r.writeReport(engine, logger)
	if err != nil {
		return fmt.Errorf("failed to write unmatched report: %w", err)
	}
	if path != "" {
		r.writePlain("Unmatched items written to %s\n", path)
	}
	return nil
}
