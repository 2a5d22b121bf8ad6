// package tasks resolves track lists against the catalog and downloads what it finds.
//
// The core abstraction is ResolutionEngine, which fans a Resolver out over many tracks.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

// DefaultConcurrency bounds the number of tracks resolved at once.
const DefaultConcurrency = 8

// TrackResolver resolves one track. [*Resolver] implements it.
type TrackResolver interface {
	Resolve(ctx context.Context, track models.Track, restrictAlbum bool) (*Resolution, error)
}

// ResolutionRecorder persists the results of a batch.
type ResolutionRecorder interface {
	RecordBatch(ctx context.Context, records []*models.ResolutionRecord) error
}

// BatchResult contains all data from one resolution run.
type BatchResult struct {
	BatchID    string
	Results    []Resolution   // one per input track, in input order
	Downloads  []Resolution   // found results, unique by artifact id, in input order
	Unresolved []models.Track // tracks that were not found, including failures
	Matched    int            // number of tracks that resolved to an artifact
	Total      int
	Elapsed    time.Duration
}

// MatchPercentage is the share of tracks that resolved, as a percentage.
func (r *BatchResult) MatchPercentage() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Matched) / float64(r.Total) * 100
}

// Failures returns the results that ended with an error.
func (r *BatchResult) Failures() []Resolution {
	var out []Resolution
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// ResolutionEngine resolves many tracks concurrently through one shared resolver.
type ResolutionEngine struct {
	resolver      TrackResolver
	recorder      ResolutionRecorder
	concurrency   int
	restrictAlbum bool
	logger        *log.Logger
}

// EngineOption configures a [ResolutionEngine].
type EngineOption func(*ResolutionEngine)

// WithConcurrency sets how many tracks are resolved at once.
func WithConcurrency(n int) EngineOption {
	return func(e *ResolutionEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithRestrictAlbum makes file-level matches also compare albums.
func WithRestrictAlbum(restrict bool) EngineOption {
	return func(e *ResolutionEngine) { e.restrictAlbum = restrict }
}

// WithRecorder stores every batch through rec.
func WithRecorder(rec ResolutionRecorder) EngineOption {
	return func(e *ResolutionEngine) { e.recorder = rec }
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *ResolutionEngine) { e.logger = l }
}

// NewResolutionEngine creates an engine around resolver.
func NewResolutionEngine(resolver TrackResolver, opts ...EngineOption) *ResolutionEngine {
	e := &ResolutionEngine{resolver: resolver, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = shared.WithLogger(e.logger, "component", "engine")
	return e
}

// Run resolves tracks and returns the deduplicated download set.
//
// A failing track never stops its siblings: errors and panics are recorded on that track's
// Resolution. Only cancelling ctx stops the batch, in which case the partial result is
// returned together with the context error.
func (e *ResolutionEngine) Run(ctx context.Context, tracks []models.Track, progress chan<- ProgressUpdate) (*BatchResult, error) {
	if e.resolver == nil {
		return nil, fmt.Errorf("%w: resolver not initialized", shared.ErrServiceUnavailable)
	}

	start := time.Now()
	total := len(tracks)
	result := &BatchResult{
		BatchID: shared.GenerateID(),
		Results: make([]Resolution, total),
		Total:   total,
	}
	logger := e.logger.With("batch", result.BatchID)

	sendProgress(progress, resolveStartedUpdate(total, e.concurrency))

	var done atomic.Int32
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, track := range tracks {
		if ctx.Err() != nil {
			result.Results[i] = Resolution{Track: track, Query: track, Phase: PhaseNotFound, Err: ctx.Err()}
			continue
		}

		g.Go(func() error {
			res := e.resolveOne(ctx, logger, track)
			result.Results[i] = res
			sendProgress(progress, resolvedUpdate(int(done.Add(1)), total, &res))
			return nil
		})
	}
	_ = g.Wait()

	e.collect(result)
	sendProgress(progress, dedupUpdate(len(result.Downloads), result.Matched))
	result.Elapsed = time.Since(start)

	logger.Info("batch resolved",
		"matched", result.Matched,
		"total", result.Total,
		"artifacts", len(result.Downloads),
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if e.recorder != nil {
		sendProgress(progress, recordUpdate(result.BatchID))
		records := make([]*models.ResolutionRecord, total)
		for i := range result.Results {
			records[i] = result.Results[i].Record(result.BatchID, i)
		}
		if err := e.recorder.RecordBatch(ctx, records); err != nil {
			return result, fmt.Errorf("failed to record batch %s: %w", result.BatchID, err)
		}
	}
	return result, nil
}

// resolveOne runs the resolver for a single track, turning errors and panics into a result.
func (e *ResolutionEngine) resolveOne(ctx context.Context, logger *log.Logger, track models.Track) (res Resolution) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("resolver panicked", "track", track.String(), "panic", r, "stack", string(debug.Stack()))
			res = Resolution{Track: track, Query: track, Phase: PhaseNotFound, Err: fmt.Errorf("resolver panicked: %v", r)}
		}
	}()

	out, err := e.resolver.Resolve(ctx, track, e.restrictAlbum)
	if out == nil {
		out = &Resolution{Track: track, Query: track, Phase: PhaseNotFound}
	}
	if err != nil {
		logger.Warn("could not resolve track", "track", track.String(), "error", err)
		out.Phase, out.Err = PhaseNotFound, err
	}
	return *out
}

// collect counts matches and keeps the first track seen for each artifact id.
func (e *ResolutionEngine) collect(result *BatchResult) {
	seen := make(map[int]struct{})
	for _, res := range result.Results {
		if !res.Found() {
			result.Unresolved = append(result.Unresolved, res.Track)
			continue
		}

		result.Matched++
		id := res.ArtifactID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result.Downloads = append(result.Downloads, res)
	}
}
