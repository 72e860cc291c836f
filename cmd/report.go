package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// ReportShow prints the unmatched report written by the last sync that had unmatched items.
func (r *Runner) ReportShow(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Sync.ReportPath
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r.writePlain("No unmatched report at %s\n", path)
	}
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	return r.writePlain("%s", data)
}
