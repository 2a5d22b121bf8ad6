package tasks

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/desertthunder/redlist/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Stage   Stage  // Operation stage
	Step    int    // Current step number within stage
	Total   int    // Total steps in this stage
	Message string // Human-readable message for display
	Data    any    // Optional stage-specific data for advanced UIs
}

// Stage of a batch operation
type Stage int

const (
	FetchSource Stage = iota
	MatchLibrary
	ResolveTracks
	Dedup
	RecordBatch
	CheckQuota
	DownloadArtifacts
)

func (s Stage) String() string {
	switch s {
	case FetchSource:
		return "fetch_source"
	case MatchLibrary:
		return "match_library"
	case ResolveTracks:
		return "resolve_tracks"
	case Dedup:
		return "dedup"
	case RecordBatch:
		return "record_batch"
	case CheckQuota:
		return "check_quota"
	case DownloadArtifacts:
		return "download_artifacts"
	default:
		return ""
	}
}

// sendProgress sends an update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func resolveStartedUpdate(total, concurrency int) ProgressUpdate {
	return ProgressUpdate{
		Stage:   ResolveTracks,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Resolving %d tracks (%d at a time)...", total, concurrency),
	}
}

func resolvedUpdate(step, total int, res *Resolution) ProgressUpdate {
	mark := "✗"
	if res.Found() {
		mark = "✓"
	}
	return ProgressUpdate{
		Stage:   ResolveTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, res.Track.String(), res.Phase),
		Data:    res,
	}
}

func dedupUpdate(kept, found int) ProgressUpdate {
	return ProgressUpdate{
		Stage:   Dedup,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d unique artifacts from %d resolved tracks", kept, found),
	}
}

func recordUpdate(batchID string) ProgressUpdate {
	return ProgressUpdate{
		Stage:   RecordBatch,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Recording batch %s...", batchID),
	}
}

// downloadUpdate announces the download at index; Step counts the downloads already finished.
func downloadUpdate(index, done, total int, release *models.Release) ProgressUpdate {
	return ProgressUpdate{
		Stage:   DownloadArtifacts,
		Step:    done,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Downloading %s...", index, total, release.String()),
	}
}

func downloadedUpdate(step, total int, filename string, size int) ProgressUpdate {
	return ProgressUpdate{
		Stage:   DownloadArtifacts,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, filename, humanize.IBytes(uint64(size))),
	}
}

func downloadFailedUpdate(step, total int, release *models.Release, err error) ProgressUpdate {
	return ProgressUpdate{
		Stage:   DownloadArtifacts,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, release.String(), err),
	}
}
