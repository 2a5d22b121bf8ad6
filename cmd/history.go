package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/redlist/internal/formatter"
)

// History lists the most recent resolution batches.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	_, history, err := r.repos()
	if err != nil {
		return err
	}

	batches, err := history.Batches(cmd.Int("limit"))
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return r.writePlain("No batches recorded yet\n")
	}
	return r.writePlain("%s", formatter.BatchTable(batches))
}

// HistoryShow prints the records of one batch, as a list or as CSV.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	_, history, err := r.repos()
	if err != nil {
		return err
	}

	records, err := history.Batch(cmd.StringArg("id"))
	if err != nil {
		return err
	}

	if cmd.Bool("csv") {
		data, err := formatter.ExportToCSV(records)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}

	found := 0
	for _, rec := range records {
		if rec.Found() {
			found++
		}
	}
	r.writePlainHeader(fmt.Sprintf("Batch %s: %d/%d found", records[0].BatchID, found, len(records)))
	for _, rec := range records {
		mark := "✗"
		if rec.Found() {
			mark = "✓"
		}
		r.writePlain("%3d. %s %s (%s)\n", rec.Position+1, mark, rec.Track, rec.Phase)
		if rec.Found() {
			r.writePlain("     %s #%d\n", rec.ReleaseName, rec.ArtifactID)
		}
		if rec.Error != "" {
			r.writePlain("     error: %s\n", rec.Error)
		}
	}
	return nil
}
