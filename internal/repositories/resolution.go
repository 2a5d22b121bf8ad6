package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

// ResolutionRepository stores the outcome of every resolved track, grouped by batch.
//
// Records are written once per batch and never change afterwards.
type ResolutionRepository struct {
	db *sql.DB
}

// NewResolutionRepository creates a new ResolutionRepository with the given database connection
func NewResolutionRepository(db *sql.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

const resolutionColumns = `id, batch_id, position, track, phase, release_id, release_name, artifact_id, error, created_at`

const insertResolution = `
	INSERT INTO resolutions (id, batch_id, position, track, artist, title, phase, release_id, release_name, artifact_id, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec *models.ResolutionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if rec.ID() == "" {
		rec.SetID(shared.GenerateID())
	}

	_, err := db.ExecContext(ctx, insertResolution,
		rec.ID(),
		rec.BatchID,
		rec.Position,
		rec.Track.Serialize(),
		rec.Track.Artist,
		rec.Track.Title,
		rec.Phase,
		rec.ReleaseID,
		rec.ReleaseName,
		rec.ArtifactID,
		rec.Error,
		rec.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}
	return nil
}

// Create inserts a single record.
func (r *ResolutionRepository) Create(rec *models.ResolutionRecord) error {
	return insertRecord(context.Background(), r.db, rec)
}

// RecordBatch inserts every record of a batch in one transaction.
func (r *ResolutionRepository) RecordBatch(ctx context.Context, records []*models.ResolutionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := insertRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("record %d of batch %s: %w", rec.Position, rec.BatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Get retrieves a record by ID
func (r *ResolutionRepository) Get(id string) (*models.ResolutionRecord, error) {
	row := r.db.QueryRow(`SELECT `+resolutionColumns+` FROM resolutions WHERE id = ?`, id)
	rec, err := scanResolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no resolution %s", shared.ErrTrackNotFound, id)
	}
	return rec, err
}

// Update is not supported: records are immutable once written.
func (r *ResolutionRepository) Update(rec *models.ResolutionRecord) error {
	return fmt.Errorf("%w: resolution records cannot be updated", shared.ErrNotImplemented)
}

// Delete removes a record by ID
func (r *ResolutionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM resolutions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resolution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resolution not found: %s", id)
	}
	return nil
}

// DeleteBatch removes every record of a batch and returns how many were removed.
func (r *ResolutionRepository) DeleteBatch(batchID string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM resolutions WHERE batch_id = ?`, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batch: %w", err)
	}
	return result.RowsAffected()
}

// List retrieves records matching the given criteria.
//
// Supported criteria are "batch_id" (string), "artifact_id" (int) and "found" (bool).
// Records are ordered by batch and position.
func (r *ResolutionRepository) List(criteria map[string]any) ([]*models.ResolutionRecord, error) {
	query := `SELECT ` + resolutionColumns + ` FROM resolutions WHERE 1 = 1`
	args := []any{}

	if batchID, ok := criteria["batch_id"].(string); ok && batchID != "" {
		query += " AND batch_id = ?"
		args = append(args, batchID)
	}
	if artifactID, ok := criteria["artifact_id"].(int); ok && artifactID != 0 {
		query += " AND artifact_id = ?"
		args = append(args, artifactID)
	}
	if found, ok := criteria["found"].(bool); ok {
		if found {
			query += " AND artifact_id != 0"
		} else {
			query += " AND artifact_id = 0"
		}
	}

	query += " ORDER BY created_at ASC, batch_id ASC, position ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	var records []*models.ResolutionRecord
	for rows.Next() {
		rec, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Batch returns the records of the batch whose id starts with prefix.
//
// A prefix shared by several batches is rejected with [shared.ErrInvalidArgument].
func (r *ResolutionRepository) Batch(prefix string) ([]*models.ResolutionRecord, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: batch id", shared.ErrMissingArgument)
	}

	rows, err := r.db.Query(`SELECT DISTINCT batch_id FROM resolutions WHERE batch_id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan batch id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: no batch matches %q", shared.ErrInvalidArgument, prefix)
	case 1:
		return r.List(map[string]any{"batch_id": ids[0]})
	default:
		return nil, fmt.Errorf("%w: %q matches more than one batch", shared.ErrInvalidArgument, prefix)
	}
}

// Batches summarizes the most recent batches, newest first.
func (r *ResolutionRepository) Batches(limit int) ([]models.BatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT batch_id, COUNT(*), SUM(CASE WHEN artifact_id != 0 THEN 1 ELSE 0 END), MIN(created_at)
		FROM resolutions
		GROUP BY batch_id
		ORDER BY MIN(created_at) DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []models.BatchSummary
	for rows.Next() {
		var (
			b       models.BatchSummary
			started string
		)
		if err := rows.Scan(&b.BatchID, &b.Total, &b.Found, &started); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.StartedAt = parseSQLiteTime(started)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return batches, nil
}

// sqlite returns aggregates over timestamp columns as text.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func scanResolution(s scanner) (*models.ResolutionRecord, error) {
	var (
		id          string
		batchID     string
		position    int
		serialized  string
		phase       string
		releaseID   int
		releaseName string
		artifactID  int
		errMsg      string
		createdAt   time.Time
	)

	err := s.Scan(&id, &batchID, &position, &serialized, &phase, &releaseID, &releaseName, &artifactID, &errMsg, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resolution: %w", err)
	}

	track, err := models.ParseTrack(serialized)
	if err != nil {
		return nil, fmt.Errorf("resolution %s has an unreadable track: %w", id, err)
	}

	rec := models.NewResolutionRecord(batchID, position, track)
	rec.SetID(id)
	rec.SetCreatedAt(createdAt)
	rec.Phase = phase
	rec.ReleaseID = releaseID
	rec.ReleaseName = releaseName
	rec.ArtifactID = artifactID
	rec.Error = errMsg
	return rec, nil
}
