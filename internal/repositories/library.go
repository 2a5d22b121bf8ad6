package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/redlist/internal/matching"
	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

// LibraryRepository implements models.Repository[*models.LibraryItem] for the local library.
//
// It also answers the substring lookups used to match playlist tracks against files on disk.
type LibraryRepository struct {
	db *sql.DB
}

// NewLibraryRepository creates a new LibraryRepository with the given database connection
func NewLibraryRepository(db *sql.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

const libraryColumns = `id, sequence, path, artist, title, album, length, created_at, updated_at`

// Create inserts a new [models.LibraryItem] with a generated ID and sequence
func (r *LibraryRepository) Create(item *models.LibraryItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "library_items")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	item.SetID(id)
	item.SetSequence(sequence)

	query := `
		INSERT INTO library_items (` + libraryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		item.Path,
		item.Track.Artist,
		item.Track.Title,
		item.Track.Album,
		item.Track.Length,
		item.CreatedAt(),
		item.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert library item: %w", err)
	}

	return nil
}

// Get retrieves a library item by ID
func (r *LibraryRepository) Get(id string) (*models.LibraryItem, error) {
	query := `SELECT ` + libraryColumns + ` FROM library_items WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByPath retrieves the library item for a file path
func (r *LibraryRepository) GetByPath(path string) (*models.LibraryItem, error) {
	query := `SELECT ` + libraryColumns + ` FROM library_items WHERE path = ?`
	return r.scanOne(r.db.QueryRow(query, path))
}

// Update modifies an existing library item
func (r *LibraryRepository) Update(item *models.LibraryItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	item.Touch()

	query := `
		UPDATE library_items
		SET path = ?, artist = ?, title = ?, album = ?, length = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		item.Path,
		item.Track.Artist,
		item.Track.Title,
		item.Track.Album,
		item.Track.Length,
		item.UpdatedAt(),
		item.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update library item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("library item not found: %s", item.ID())
	}

	return nil
}

// Save creates the item, or updates the item already stored for the same path.
func (r *LibraryRepository) Save(item *models.LibraryItem) error {
	existing, err := r.GetByPath(item.Path)
	switch {
	case errors.Is(err, shared.ErrTrackNotFound):
		return r.Create(item)
	case err != nil:
		return err
	}

	item.SetID(existing.ID())
	item.SetSequence(existing.Sequence())
	item.SetCreatedAt(existing.CreatedAt())
	return r.Update(item)
}

// Delete removes a library item by ID
func (r *LibraryRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM library_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete library item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("library item not found: %s", id)
	}

	return nil
}

// List retrieves library items matching the given criteria, ordered by sequence.
//
// Supported criteria are exact "artist", "album" and "title" values and an integer "limit".
func (r *LibraryRepository) List(criteria map[string]any) ([]*models.LibraryItem, error) {
	query := `SELECT ` + libraryColumns + ` FROM library_items WHERE 1 = 1`
	args := []any{}

	for _, field := range []string{"artist", "album", "title"} {
		if v, ok := criteria[field].(string); ok && v != "" {
			query += " AND " + field + " = ?"
			args = append(args, v)
		}
	}

	query += " ORDER BY sequence ASC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return r.query(context.Background(), query, args...)
}

// Count returns the number of items in the library.
func (r *LibraryRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM library_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count library items: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Lookup returns items whose field contains value, ignoring case.
//
// field is one of "artist", "album" or "title".
func (r *LibraryRepository) Lookup(ctx context.Context, field, value string) ([]*models.LibraryItem, error) {
	switch field {
	case "artist", "album", "title":
	default:
		return nil, fmt.Errorf("%w: cannot look up library items by %q", shared.ErrInvalidArgument, field)
	}

	query := `SELECT ` + libraryColumns + ` FROM library_items
		WHERE LOWER(` + field + `) LIKE '%' || LOWER(?) || '%' ESCAPE '\'
		ORDER BY sequence ASC`
	return r.query(ctx, query, likeEscaper.Replace(value))
}

// TagReader reads the identity of the audio file at path.
type TagReader func(path string) (models.Track, error)

// ImportResult summarizes a library import.
type ImportResult struct {
	Scanned  int
	Imported int
	Failed   map[string]error // path -> reason

	// Duplicates pairs the paths of imported files that likely hold the same recording.
	Duplicates [][2]string
}

// AudioExtensions are the file extensions Import reads tags from.
var AudioExtensions = []string{".mp3", ".flac"}

// Import walks root, reads the tags of every audio file with read and saves the results.
//
// Tags are read concurrently; files whose tags cannot be read, including readers that panic, are
// reported in ImportResult.Failed and do not stop the import.
func (r *LibraryRepository) Import(ctx context.Context, root string, read TagReader, concurrency int) (*ImportResult, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range AudioExtensions {
			if ext == want {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	tracks := make([]models.Track, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tracks[i], errs[i] = readTags(read, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ImportResult{Scanned: len(paths), Failed: make(map[string]error)}
	var (
		imported []models.Track
		saved    []string
	)
	for i, path := range paths {
		if errs[i] != nil {
			result.Failed[path] = errs[i]
			continue
		}
		if err := r.Save(models.NewLibraryItem(path, tracks[i])); err != nil {
			result.Failed[path] = err
			continue
		}
		result.Imported++
		imported = append(imported, tracks[i])
		saved = append(saved, path)
	}

	for _, d := range matching.FindDuplicates(imported) {
		result.Duplicates = append(result.Duplicates, [2]string{saved[d.First], saved[d.Second]})
	}
	return result, nil
}

// readTags calls read, turning a panic into an error for path.
func readTags(read TagReader, path string) (track models.Track, err error) {
	defer func() {
		if r := recover(); r != nil {
			track, err = models.Track{}, fmt.Errorf("%w: tag reader panicked on %s: %v", shared.ErrInvalidInput, path, r)
		}
	}()
	return read(path)
}

func (r *LibraryRepository) query(ctx context.Context, query string, args ...any) ([]*models.LibraryItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query library items: %w", err)
	}
	defer rows.Close()

	var items []*models.LibraryItem
	for rows.Next() {
		item, err := scanLibraryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// scanOne scans a single [sql.Row] into a [models.LibraryItem]
func (r *LibraryRepository) scanOne(row *sql.Row) (*models.LibraryItem, error) {
	item, err := scanLibraryItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no library item", shared.ErrTrackNotFound)
	}
	return item, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLibraryItem(s scanner) (*models.LibraryItem, error) {
	var (
		id        string
		sequence  int
		path      string
		artist    string
		title     string
		album     string
		length    float64
		createdAt time.Time
		updatedAt time.Time
	)

	err := s.Scan(&id, &sequence, &path, &artist, &title, &album, &length, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan library item: %w", err)
	}

	track := models.Track{Artist: artist, Title: title, Album: album, Length: length}
	item := models.NewLibraryItem(path, track)
	item.SetID(id)
	item.SetSequence(sequence)
	item.SetCreatedAt(createdAt)
	item.SetUpdatedAt(updatedAt)
	return item, nil
}
