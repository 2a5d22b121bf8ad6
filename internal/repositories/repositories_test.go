package repositories

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/redlist/internal/matching"
	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newItem(t *testing.T, path, artist, title, album string) *models.LibraryItem {
	t.Helper()
	track, err := models.NewTrack(artist, title, models.WithAlbum(album))
	if err != nil {
		t.Fatalf("failed to build track: %v", err)
	}
	return models.NewLibraryItem(path, track)
}

func seedLibrary(t *testing.T, repo *LibraryRepository) {
	t.Helper()
	items := []*models.LibraryItem{
		newItem(t, "/music/boc/roygbiv.flac", "Boards of Canada", "Roygbiv", "Music Has the Right to Children"),
		newItem(t, "/music/boc/aquarius.flac", "Boards of Canada", "Aquarius", "Music Has the Right to Children"),
		newItem(t, "/music/ubo/alto.mp3", "Up, Bustle & Out", "1, 2, 3 Alto Y Fuera", "One Colour Just Reflects Another"),
		newItem(t, "/music/misc/100.mp3", "Someone", "100% Pure", ""),
	}
	for _, item := range items {
		if err := repo.Create(item); err != nil {
			t.Fatalf("failed to create %s: %v", item.Path, err)
		}
	}
}

func TestLibraryRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		item := newItem(t, "/music/a.flac", "Artist", "Song", "Album")

		if err := repo.Create(item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}
		if item.ID() == "" {
			t.Error("item ID should be set after creation")
		}
		if item.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", item.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		item := newItem(t, "/music/a.flac", "Artist", "Song", "Album")
		item.Track.Length = 245.5
		if err := repo.Create(item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}

		got, err := repo.Get(item.ID())
		if err != nil {
			t.Fatalf("failed to get item: %v", err)
		}
		if got.Path != item.Path || !got.Track.Equal(item.Track) {
			t.Errorf("expected %+v, got %+v", item, got)
		}

		byPath, err := repo.GetByPath("/music/a.flac")
		if err != nil {
			t.Fatalf("failed to get item by path: %v", err)
		}
		if byPath.ID() != item.ID() {
			t.Errorf("expected ID %s, got %s", item.ID(), byPath.ID())
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		item := newItem(t, "/music/a.flac", "Artist", "Song", "Album")
		if err := repo.Create(item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}

		item.Track.Title = "Song (Remix)"
		if err := repo.Update(item); err != nil {
			t.Fatalf("failed to update item: %v", err)
		}

		got, _ := repo.Get(item.ID())
		if got.Track.Title != "Song (Remix)" {
			t.Errorf("expected updated title, got %q", got.Track.Title)
		}
	})

	t.Run("Save", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		first := newItem(t, "/music/a.flac", "Artist", "Song", "Album")
		if err := repo.Save(first); err != nil {
			t.Fatalf("failed to save item: %v", err)
		}

		second := newItem(t, "/music/a.flac", "Artist", "Song", "Other Album")
		if err := repo.Save(second); err != nil {
			t.Fatalf("failed to save item again: %v", err)
		}

		if second.ID() != first.ID() {
			t.Errorf("saving the same path should keep its ID, got %s and %s", first.ID(), second.ID())
		}
		if n, _ := repo.Count(); n != 1 {
			t.Errorf("expected 1 item, got %d", n)
		}
		got, _ := repo.GetByPath("/music/a.flac")
		if got.Track.Album != "Other Album" {
			t.Errorf("expected the second save to win, got %q", got.Track.Album)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		item := newItem(t, "/music/a.flac", "Artist", "Song", "")
		if err := repo.Create(item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}
		if err := repo.Delete(item.ID()); err != nil {
			t.Fatalf("failed to delete item: %v", err)
		}
		if _, err := repo.Get(item.ID()); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound after delete, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		seedLibrary(t, repo)

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list items: %v", err)
		}
		if len(all) != 4 || all[0].Track.Title != "Roygbiv" {
			t.Errorf("expected 4 items in import order, got %d", len(all))
		}

		boc, _ := repo.List(map[string]any{"artist": "Boards of Canada", "limit": 1})
		if len(boc) != 1 || boc[0].Track.Title != "Roygbiv" {
			t.Errorf("unexpected filtered list %v", boc)
		}
	})

	t.Run("Lookup", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		seedLibrary(t, repo)
		ctx := context.Background()

		tests := []struct {
			field, value string
			want         int
		}{
			{"title", "ROYGBIV", 1},
			{"album", "right to", 2},
			{"artist", "bustle", 1},
			{"title", "100%", 1},
			{"title", "%", 1},
			{"title", "_", 0},
			{"artist", "nobody", 0},
		}
		for _, tt := range tests {
			items, err := repo.Lookup(ctx, tt.field, tt.value)
			if err != nil {
				t.Fatalf("Lookup(%s, %s) failed: %v", tt.field, tt.value, err)
			}
			if len(items) != tt.want {
				t.Errorf("Lookup(%s, %q) returned %d items, want %d", tt.field, tt.value, len(items), tt.want)
			}
		}

		if _, err := repo.Lookup(ctx, "path", "x"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for an unknown field, got %v", err)
		}
	})

	t.Run("Import", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		root := t.TempDir()
		for _, name := range []string{"a.mp3", "b.flac", "bad.flac", "notes.txt", "sub/c.MP3"} {
			path := filepath.Join(root, name)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
				t.Fatal(err)
			}
		}

		titles := map[string]string{"a": "Roygbiv", "b": "Aquarius", "c": "Telephasic Workshop"}
		read := func(path string) (models.Track, error) {
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if base == "bad" {
				return models.Track{}, errors.New("no tags")
			}
			return models.NewTrack("Boards of Canada", titles[base])
		}

		repo := NewLibraryRepository(db)
		result, err := repo.Import(context.Background(), root, read, 2)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if result.Scanned != 4 || result.Imported != 3 || len(result.Failed) != 1 {
			t.Errorf("unexpected import result %+v", result)
		}
		if len(result.Duplicates) != 0 {
			t.Errorf("distinct titles should not be reported as duplicates, got %v", result.Duplicates)
		}
		if _, ok := result.Failed[filepath.Join(root, "bad.flac")]; !ok {
			t.Errorf("expected bad.flac to fail, got %v", result.Failed)
		}

		if _, err := repo.Import(context.Background(), root, read, 2); err != nil {
			t.Fatalf("second import failed: %v", err)
		}
		if n, _ := repo.Count(); n != 3 {
			t.Errorf("importing twice should not duplicate items, got %d", n)
		}
	})

	t.Run("Import Reports Duplicates", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		root := t.TempDir()
		for _, name := range []string{"hoppipolla.flac", "hoppipolla.mp3"} {
			if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0644); err != nil {
				t.Fatal(err)
			}
		}
		read := func(path string) (models.Track, error) {
			if filepath.Ext(path) == ".mp3" {
				return models.NewTrack("Sigur Ros", "Hoppipolla")
			}
			return models.NewTrack("Sigur Rós", "Hoppípolla")
		}

		result, err := NewLibraryRepository(db).Import(context.Background(), root, read, 0)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if len(result.Duplicates) != 1 {
			t.Fatalf("expected one duplicate pair, got %v", result.Duplicates)
		}
		if result.Duplicates[0][0] != filepath.Join(root, "hoppipolla.flac") {
			t.Errorf("pairs should follow walk order, got %v", result.Duplicates[0])
		}
	})

	t.Run("Import Survives Panicking Reader", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		root := t.TempDir()
		for _, name := range []string{"empty.flac", "roygbiv.mp3"} {
			if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0644); err != nil {
				t.Fatal(err)
			}
		}
		read := func(path string) (models.Track, error) {
			if filepath.Ext(path) == ".flac" {
				panic("runtime error: index out of range [0] with length 0")
			}
			return models.NewTrack("Boards of Canada", "Roygbiv")
		}

		result, err := NewLibraryRepository(db).Import(context.Background(), root, read, 2)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if result.Imported != 1 {
			t.Errorf("expected the readable file to be imported, got %+v", result)
		}
		if err := result.Failed[filepath.Join(root, "empty.flac")]; !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected empty.flac to fail with ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Import Missing Root", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		if _, err := repo.Import(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, 1); err == nil {
			t.Error("expected an error for a missing directory")
		}
	})

	t.Run("Match Playlist", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLibraryRepository(db)
		seedLibrary(t, repo)

		want := []models.Track{
			{Artist: "Boards of Canada", Title: "Aquarius"},
			{Artist: "Up, Bustle & Out", Title: "1, 2, 3 Alto y Fuera", Album: "One Colour Just Reflects Another"},
			{Artist: "Nobody", Title: "Nothing"},
		}
		matched, missing, err := matching.DefaultMatcher().MatchLibrary(context.Background(), repo, want, false)
		if err != nil {
			t.Fatalf("MatchLibrary failed: %v", err)
		}
		if len(matched) != 2 || len(missing) != 1 {
			t.Fatalf("expected 2 matched and 1 missing, got %d and %d", len(matched), len(missing))
		}
		if matched[0].Item.Path != "/music/boc/aquarius.flac" || matched[1].Item.Path != "/music/ubo/alto.mp3" {
			t.Errorf("unexpected matches %s, %s", matched[0].Item.Path, matched[1].Item.Path)
		}
		if missing[0].Title != "Nothing" {
			t.Errorf("unexpected missing track %s", missing[0])
		}
	})
}

func recordsFor(t *testing.T, batchID string, artifacts ...int) []*models.ResolutionRecord {
	t.Helper()
	var out []*models.ResolutionRecord
	for i, id := range artifacts {
		track, err := models.NewTrack("Artist", "Song "+string(rune('A'+i)), models.WithAttr("spotify_id", models.Str("sp"+string(rune('a'+i)))))
		if err != nil {
			t.Fatal(err)
		}
		rec := models.NewResolutionRecord(batchID, i, track)
		rec.Phase = "not_found"
		if id != 0 {
			rec.Phase = "found"
			rec.ArtifactID = id
			rec.ReleaseID = id * 10
			rec.ReleaseName = "Release"
		}
		out = append(out, rec)
	}
	return out
}

func TestResolutionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Record Batch", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		if err := repo.RecordBatch(ctx, recordsFor(t, "batch-one", 42, 0, 7)); err != nil {
			t.Fatalf("failed to record batch: %v", err)
		}

		records, err := repo.List(map[string]any{"batch_id": "batch-one"})
		if err != nil {
			t.Fatalf("failed to list records: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		if records[0].ArtifactID != 42 || records[1].Found() || records[2].Position != 2 {
			t.Errorf("unexpected records %+v", records)
		}
		if v := records[0].Track.AttrString("spotify_id"); v != "spa" {
			t.Errorf("extra attributes should survive storage, got %q", v)
		}

		got, err := repo.Get(records[0].ID())
		if err != nil {
			t.Fatalf("failed to get record: %v", err)
		}
		if got.BatchID != "batch-one" || got.ReleaseID != 420 {
			t.Errorf("unexpected record %+v", got)
		}
	})

	t.Run("List Criteria", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		_ = repo.RecordBatch(ctx, recordsFor(t, "b1", 42, 0))
		_ = repo.RecordBatch(ctx, recordsFor(t, "b2", 0, 42))

		found, _ := repo.List(map[string]any{"found": true})
		if len(found) != 2 {
			t.Errorf("expected 2 found records, got %d", len(found))
		}
		missing, _ := repo.List(map[string]any{"found": false, "batch_id": "b2"})
		if len(missing) != 1 {
			t.Errorf("expected 1 missing record in b2, got %d", len(missing))
		}
		byArtifact, _ := repo.List(map[string]any{"artifact_id": 42})
		if len(byArtifact) != 2 {
			t.Errorf("expected 2 records for artifact 42, got %d", len(byArtifact))
		}
	})

	t.Run("Batch By Prefix", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		_ = repo.RecordBatch(ctx, recordsFor(t, "abc-123", 1))
		_ = repo.RecordBatch(ctx, recordsFor(t, "abd-456", 2, 3))

		records, err := repo.Batch("abd")
		if err != nil {
			t.Fatalf("failed to get batch: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("expected 2 records, got %d", len(records))
		}

		if _, err := repo.Batch("ab"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected an ambiguous prefix to fail, got %v", err)
		}
		if _, err := repo.Batch("zzz"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected an unknown prefix to fail, got %v", err)
		}
		if _, err := repo.Batch(""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected a missing prefix to fail, got %v", err)
		}
	})

	t.Run("Batches", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		older := recordsFor(t, "older", 1, 0, 0)
		for _, rec := range older {
			rec.SetCreatedAt(time.Now().Add(-time.Hour))
		}
		_ = repo.RecordBatch(ctx, older)
		_ = repo.RecordBatch(ctx, recordsFor(t, "newer", 5, 6))

		batches, err := repo.Batches(10)
		if err != nil {
			t.Fatalf("failed to list batches: %v", err)
		}
		if len(batches) != 2 {
			t.Fatalf("expected 2 batches, got %d", len(batches))
		}
		if batches[0].BatchID != "newer" || batches[0].Total != 2 || batches[0].Found != 2 {
			t.Errorf("unexpected newest batch %+v", batches[0])
		}
		if batches[1].Total != 3 || batches[1].Found != 1 {
			t.Errorf("unexpected older batch %+v", batches[1])
		}
		if batches[1].StartedAt.IsZero() {
			t.Error("expected a start time")
		}
	})

	t.Run("Delete Batch", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		_ = repo.RecordBatch(ctx, recordsFor(t, "gone", 1, 2))

		n, err := repo.DeleteBatch("gone")
		if err != nil || n != 2 {
			t.Errorf("expected 2 deleted records, got %d (%v)", n, err)
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	seq1, err := NextSequence(db, "library_items")
	if err != nil {
		t.Fatalf("failed to get sequence: %v", err)
	}
	seq2, err := NextSequence(db, "library_items")
	if err != nil {
		t.Fatalf("failed to get sequence: %v", err)
	}
	if seq2 != seq1+1 {
		t.Errorf("expected consecutive sequences, got %d then %d", seq1, seq2)
	}

	if _, err := NextSequence(db, "unknown"); err == nil {
		t.Error("expected an error for a table without a sequence")
	}
}
