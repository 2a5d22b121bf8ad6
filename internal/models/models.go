package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/redlist/internal/shared"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// LibraryItem is an audio file known to the local library.
type LibraryItem struct {
	id        string
	sequence  int
	Path      string
	Track     Track
	createdAt time.Time
	updatedAt time.Time
}

// NewLibraryItem creates an unsaved item for the file at path.
func NewLibraryItem(path string, track Track) *LibraryItem {
	now := time.Now()
	return &LibraryItem{Path: path, Track: track, createdAt: now, updatedAt: now}
}

func (i *LibraryItem) ID() string { return i.id }
func (i *LibraryItem) Sequence() int { return i.sequence }
func (i *LibraryItem) CreatedAt() time.Time { return i.createdAt }
func (i *LibraryItem) UpdatedAt() time.Time { return i.updatedAt }

func (i *LibraryItem) SetID(id string) { i.id = id }
func (i *LibraryItem) SetSequence(seq int) { i.sequence = seq }
func (i *LibraryItem) SetCreatedAt(t time.Time) { i.createdAt = t }
func (i *LibraryItem) SetUpdatedAt(t time.Time) { i.updatedAt = t }
func (i *LibraryItem) Touch() { i.updatedAt = time.Now() }

func (i *LibraryItem) Validate() error {
	if i.Path == "" {
		return fmt.Errorf("%w: library item path is required", shared.ErrValidation)
	}
	return i.Track.Validate()
}

// ResolutionRecord is the stored outcome of resolving one track in a batch.
type ResolutionRecord struct {
	id          string
	BatchID     string
	Position    int
	Track       Track
	Phase       string
	ReleaseID   int
	ReleaseName string
	ArtifactID  int
	Error       string
	createdAt   time.Time
}

// NewResolutionRecord creates an unsaved record for the track at position within batchID.
func NewResolutionRecord(batchID string, position int, track Track) *ResolutionRecord {
	return &ResolutionRecord{BatchID: batchID, Position: position, Track: track, createdAt: time.Now()}
}

func (r *ResolutionRecord) ID() string { return r.id }
func (r *ResolutionRecord) CreatedAt() time.Time { return r.createdAt }
func (r *ResolutionRecord) UpdatedAt() time.Time { return r.createdAt }

func (r *ResolutionRecord) SetID(id string) { r.id = id }
func (r *ResolutionRecord) SetCreatedAt(t time.Time) { r.createdAt = t }

// Found reports whether the track resolved to an artifact.
func (r *ResolutionRecord) Found() bool { return r.ArtifactID != 0 }

func (r *ResolutionRecord) Validate() error {
	if r.BatchID == "" {
		return fmt.Errorf("%w: batch id is required", shared.ErrValidation)
	}
	if r.Phase == "" {
		return fmt.Errorf("%w: phase is required", shared.ErrValidation)
	}
	return r.Track.Validate()
}

// BatchSummary aggregates the records stored under one batch id.
type BatchSummary struct {
	BatchID   string
	Total     int
	Found     int
	StartedAt time.Time
}
