package tasks

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/redlist/internal/services"
	"github.com/desertthunder/redlist/internal/shared"
)

// Sink receives downloaded artifacts.
type Sink interface {
	Add(ctx context.Context, filename string, data []byte) error
}

// DownloadResult is the outcome of fetching one artifact.
type DownloadResult struct {
	Resolution Resolution
	Filename   string
	Size       int
	Err        error
}

// Downloader fetches the artifacts of a download set and hands them to a sink.
type Downloader struct {
	fetcher     services.ArtifactFetcher
	sink        Sink
	useToken    bool
	concurrency int
	logger      *log.Logger
}

// NewDownloader creates a Downloader. With useToken set, every download spends a freeleech token.
func NewDownloader(fetcher services.ArtifactFetcher, sink Sink, useToken bool, concurrency int, logger *log.Logger) *Downloader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Downloader{
		fetcher:     fetcher,
		sink:        sink,
		useToken:    useToken,
		concurrency: concurrency,
		logger:      shared.WithLogger(logger, "component", "downloader"),
	}
}

// Download fetches every found resolution in set.
//
// Failures are recorded per artifact and never stop the others. The returned slice follows
// the order of set; entries that were not found are skipped.
func (d *Downloader) Download(ctx context.Context, set []Resolution, progress chan<- ProgressUpdate) ([]DownloadResult, error) {
	if d.fetcher == nil || d.sink == nil {
		return nil, fmt.Errorf("%w: downloader not initialized", shared.ErrServiceUnavailable)
	}

	found := make([]Resolution, 0, len(set))
	for _, res := range set {
		if res.Found() {
			found = append(found, res)
		}
	}

	total := len(found)
	results := make([]DownloadResult, total)
	var done atomic.Int32
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, res := range found {
		g.Go(func() error {
			sendProgress(progress, downloadUpdate(i+1, int(done.Load()), total, res.Release))
			results[i] = d.fetch(ctx, res)

			step := int(done.Add(1))
			if err := results[i].Err; err != nil {
				d.logger.Error("download failed", "artifact", res.ArtifactID(), "error", err)
				sendProgress(progress, downloadFailedUpdate(step, total, res.Release, err))
			} else {
				sendProgress(progress, downloadedUpdate(step, total, results[i].Filename, results[i].Size))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

func (d *Downloader) fetch(ctx context.Context, res Resolution) DownloadResult {
	out := DownloadResult{Resolution: res}
	id := res.ArtifactID()

	filename, data, err := d.fetcher.Artifact(ctx, id, d.useToken)
	if err != nil {
		out.Err = fmt.Errorf("artifact %d: %w", id, err)
		return out
	}
	if err := d.sink.Add(ctx, filename, data); err != nil {
		out.Err = fmt.Errorf("artifact %d: failed to store %s: %w", id, filename, err)
		return out
	}

	out.Filename, out.Size = filename, len(data)
	return out
}

// TotalSize sums the artifact sizes of the found resolutions in set.
func TotalSize(set []Resolution) int64 {
	var total int64
	for _, res := range set {
		if a, ok := res.Artifact(); ok {
			total += a.Size
		}
	}
	return total
}

// CheckBuffer reports the buffer left after downloading set.
//
// It fails with [shared.ErrInsufficientBuffer] when that is not positive.
func CheckBuffer(ctx context.Context, fetcher services.ArtifactFetcher, set []Resolution) (int64, error) {
	stats, err := fetcher.UserStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read user stats: %w", err)
	}

	size := TotalSize(set)
	remaining := stats.Buffer - size
	if remaining <= 0 {
		return remaining, fmt.Errorf(
			"%w: downloading %s needs %s more than the %s available",
			shared.ErrInsufficientBuffer,
			humanize.IBytes(uint64(size)),
			humanize.IBytes(uint64(-remaining)),
			humanize.IBytes(uint64(max(stats.Buffer, 0))),
		)
	}
	return remaining, nil
}
