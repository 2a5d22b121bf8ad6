package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/redlist/internal/formatter"
	"github.com/desertthunder/redlist/internal/shared"
	"github.com/desertthunder/redlist/internal/sink"
	"github.com/desertthunder/redlist/internal/tasks"
	"github.com/desertthunder/redlist/internal/ui"
)

// Resolve runs the whole pipeline for one playlist:
//  1. read the playlist from a file or Spotify
//  2. match it against the local library
//  3. resolve the remaining tracks on the tracker and record the batch
//  4. write the m3u playlist
//  5. review, check the buffer and download the artifacts
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	restrict := cmd.Bool("restrict") || r.config.Matching.RestrictAlbum
	printer := newProgressPrinter(r)
	progress, stop := printer.track()
	defer stop()

	progress <- tasks.ProgressUpdate{Stage: tasks.FetchSource, Message: fmt.Sprintf("Reading %s...", cmd.StringArg("playlist"))}
	playlist, entries, err := r.readSource(ctx, cmd.StringArg("playlist"))
	if err != nil {
		return err
	}

	progress <- tasks.ProgressUpdate{Stage: tasks.MatchLibrary, Message: fmt.Sprintf("Matching %d tracks of %s against the library...", len(entries), playlist.Name)}
	entries, missing, err := r.matchEntries(ctx, entries, restrict)
	if err != nil {
		return err
	}
	r.logger.Info("library matched", "playlist", playlist.Name, "matched", len(entries)-len(missing), "missing", len(missing))

	m3uPath := filepath.Join(r.config.Resolve.M3UDirectory, playlist.Name+".m3u")
	if len(missing) == 0 {
		stop()
		if err := formatter.WriteM3U(m3uPath, entries); err != nil {
			return err
		}
		r.writePlain("✓ Every track is in the library, playlist written to %s\n", m3uPath)
		return nil
	}

	catalog, err := r.catalogService(ctx)
	if err != nil {
		return err
	}
	resolver, err := r.resolver(catalog)
	if err != nil {
		return err
	}
	_, history, err := r.repos()
	if err != nil {
		return err
	}

	engine := tasks.NewResolutionEngine(resolver,
		tasks.WithConcurrency(r.config.Resolve.Concurrency),
		tasks.WithRestrictAlbum(restrict),
		tasks.WithRecorder(history),
		tasks.WithEngineLogger(r.logger),
	)

	result, err := engine.Run(ctx, missing, progress)
	if err != nil {
		return err
	}

	if err := formatter.WriteM3U(m3uPath, entries); err != nil {
		return err
	}
	r.logger.Info("playlist written", "path", m3uPath)

	stop()
	if cmd.Bool("no-download") || len(result.Downloads) == 0 {
		r.writePlain("\n%s", formatter.Summary(result))
		return nil
	}

	selected, err := r.review(ctx, cmd, catalog, result.Downloads)
	if err != nil {
		return err
	}
	result.Downloads = selected
	if len(selected) == 0 {
		r.writePlain("\n%s", formatter.Summary(result))
		return nil
	}

	dir, err := sink.NewDirSink(r.config.Resolve.TorrentDirectory, r.logger)
	if err != nil {
		return err
	}

	progress, stopDownloads := printer.track()
	defer stopDownloads()

	if r.config.Resolve.CheckBuffer && !r.config.Catalog.UseTokens {
		size := humanize.IBytes(uint64(tasks.TotalSize(selected)))
		progress <- tasks.ProgressUpdate{Stage: tasks.CheckQuota, Message: fmt.Sprintf("Checking buffer for %s...", size)}
		remaining, err := tasks.CheckBuffer(ctx, catalog, selected)
		if err != nil {
			return err
		}
		r.logger.Info("buffer checked", "remaining", humanize.IBytes(uint64(remaining)))
	}

	downloader := tasks.NewDownloader(catalog, dir, r.config.Catalog.UseTokens, r.config.Resolve.Concurrency, r.logger)
	downloads, err := downloader.Download(ctx, selected, progress)
	stopDownloads()
	if err != nil {
		return err
	}

	r.writePlain("\n%s", formatter.Summary(result))
	failed := 0
	for _, d := range downloads {
		if d.Err != nil {
			failed++
			r.writePlain("✗ %s: %v\n", d.Resolution.Track, d.Err)
		}
	}
	r.writePlain("\n✓ %d artifacts saved to %s\n", len(downloads)-failed, dir.Dir())
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d downloads failed", shared.ErrAPIRequest, failed, len(downloads))
	}
	return nil
}

// review lets the user trim the download set. It is skipped with --yes or when stdout is not
// a terminal.
func (r *Runner) review(ctx context.Context, cmd *cli.Command, catalog catalogClient, set []tasks.Resolution) ([]tasks.Resolution, error) {
	if cmd.Bool("yes") || !r.isTTY() {
		return set, nil
	}

	var buffer ui.BufferFunc
	if r.config.Resolve.CheckBuffer && !r.config.Catalog.UseTokens {
		buffer = func(ctx context.Context) (int64, error) {
			stats, err := catalog.UserStats(ctx)
			if err != nil {
				return 0, err
			}
			return stats.Buffer, nil
		}
	}
	return ui.RunReview(ctx, set, buffer)
}
