package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

func TestLibraryRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewLibraryRepository(db)
			item := models.NewLibraryItem("", models.Track{Artist: "Artist", Title: "Song"})

			if err := repo.Create(item); !errors.Is(err, shared.ErrValidation) {
				t.Fatalf("expected validation error for empty path, got %v", err)
			}
		})

		t.Run("MissingTitle", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewLibraryRepository(db)
			item := models.NewLibraryItem("/music/a.flac", models.Track{Artist: "Artist"})

			if err := repo.Create(item); err == nil {
				t.Fatal("expected validation error for a track without a title")
			}
		})

		t.Run("DuplicatePath", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewLibraryRepository(db)
			if err := repo.Create(newItem(t, "/music/a.flac", "Artist", "One", "")); err != nil {
				t.Fatalf("failed to create first item: %v", err)
			}
			if err := repo.Create(newItem(t, "/music/a.flac", "Artist", "Two", "")); err == nil {
				t.Fatal("expected error when creating an item with a duplicate path")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewLibraryRepository(db)
			if _, err := repo.Get("nonexistent-id"); !errors.Is(err, shared.ErrTrackNotFound) {
				t.Fatalf("expected ErrTrackNotFound, got %v", err)
			}
			if _, err := repo.GetByPath("/nowhere.mp3"); !errors.Is(err, shared.ErrTrackNotFound) {
				t.Fatalf("expected ErrTrackNotFound, got %v", err)
			}
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewLibraryRepository(db)
			item := newItem(t, "/music/a.flac", "Artist", "Song", "")
			item.SetID("nonexistent-id")

			if err := repo.Update(item); err == nil {
				t.Fatal("expected error when updating nonexistent item")
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewLibraryRepository(db)
			if err := repo.Delete("nonexistent-id"); err == nil {
				t.Fatal("expected error when deleting nonexistent item")
			}
		})
	})

	t.Run("Closed Database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewLibraryRepository(db)
		db.Close()

		if _, err := repo.Lookup(context.Background(), "title", "x"); err == nil {
			t.Error("expected an error from a closed database")
		}
		if _, err := repo.Count(); err == nil {
			t.Error("expected an error from a closed database")
		}
	})
}

func TestResolutionRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("ValidationError", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		rec := recordsFor(t, "batch", 1)[0]
		rec.Phase = ""

		if err := repo.Create(rec); !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected validation error for a missing phase, got %v", err)
		}
	})

	t.Run("Batch Is Atomic", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		records := recordsFor(t, "batch", 1, 2, 3)
		records[2].Position = 0

		if err := repo.RecordBatch(ctx, records); err == nil {
			t.Fatal("expected a duplicate position to fail the batch")
		}
		stored, err := repo.List(map[string]any{"batch_id": "batch"})
		if err != nil {
			t.Fatalf("failed to list records: %v", err)
		}
		if len(stored) != 0 {
			t.Errorf("a failed batch should store nothing, found %d records", len(stored))
		}
	})

	t.Run("Get NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if _, err := NewResolutionRepository(db).Get("nonexistent-id"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Fatalf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("Update Not Supported", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewResolutionRepository(db)
		rec := recordsFor(t, "batch", 1)[0]
		if err := repo.Create(rec); err != nil {
			t.Fatalf("failed to create record: %v", err)
		}
		if err := repo.Update(rec); !errors.Is(err, shared.ErrNotImplemented) {
			t.Fatalf("expected ErrNotImplemented, got %v", err)
		}
	})

	t.Run("Delete NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewResolutionRepository(db).Delete("nonexistent-id"); err == nil {
			t.Fatal("expected error when deleting nonexistent record")
		}
	})
}
