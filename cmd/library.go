package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/redlist/internal/formatter"
	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
	"github.com/desertthunder/redlist/internal/tags"
)

// LibraryImport indexes the audio files under a directory.
func (r *Runner) LibraryImport(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.StringArg("dir")
	if dir == "" {
		return fmt.Errorf("%w: library directory", shared.ErrMissingArgument)
	}

	lib, _, err := r.repos()
	if err != nil {
		return err
	}

	r.logger.Info("importing library", "dir", dir)
	result, err := lib.Import(ctx, dir, tags.Read, cmd.Int("concurrency"))
	if err != nil {
		return err
	}

	for path, reason := range result.Failed {
		r.logger.Warn("skipped file", "path", path, "error", reason)
	}

	r.writePlain("✓ Imported %d of %d audio files from %s\n", result.Imported, result.Scanned, dir)
	if n := len(result.Failed); n > 0 {
		r.writePlain("  %d files could not be read (see log)\n", n)
	}
	if len(result.Duplicates) > 0 {
		r.writePlainln("Possible duplicates (%d):", len(result.Duplicates))
		for _, pair := range result.Duplicates {
			r.writePlain("  %s\n  %s\n\n", pair[0], pair[1])
		}
	}
	return nil
}

// LibraryMatch reports which tracks of a playlist are already in the library.
func (r *Runner) LibraryMatch(ctx context.Context, cmd *cli.Command) error {
	playlist, entries, err := r.readSource(ctx, cmd.StringArg("playlist"))
	if err != nil {
		return err
	}

	entries, missing, err := r.matchEntries(ctx, entries, cmd.Bool("restrict") || r.config.Matching.RestrictAlbum)
	if err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("%s: %d/%d in library", playlist.Name, len(entries)-len(missing), len(entries)))
	for _, e := range entries {
		if e.Matched() {
			r.writePlain("✓ %s\n  %s\n", e.Track, e.Path)
		}
	}
	if len(missing) > 0 {
		r.writePlainln("Missing (%d):", len(missing))
		for _, t := range missing {
			r.writePlain("  %s\n", t)
		}
	}
	return nil
}

// readSource reads a playlist file when arg names one and otherwise fetches it from Spotify.
//
// Paths listed in an m3u file are looked up in the library.
func (r *Runner) readSource(ctx context.Context, arg string) (models.Playlist, []formatter.Entry, error) {
	if arg == "" {
		return models.Playlist{}, nil, fmt.Errorf("%w: playlist file, id or URL", shared.ErrMissingArgument)
	}

	if _, err := os.Stat(arg); err == nil {
		lib, _, err := r.repos()
		if err != nil {
			return models.Playlist{}, nil, err
		}
		lookup := func(path string) (models.Track, error) {
			item, err := lib.GetByPath(path)
			if err != nil {
				return models.Track{}, err
			}
			return item.Track, nil
		}
		return formatter.ReadPlaylist(arg, lookup)
	}

	src, err := r.playlistSource(ctx)
	if err != nil {
		return models.Playlist{}, nil, fmt.Errorf("%s is not a file and Spotify is unavailable: %w", arg, err)
	}
	playlist, err := src.PlaylistTracks(ctx, arg)
	if err != nil {
		return models.Playlist{}, nil, err
	}
	return *playlist, formatter.Entries(playlist.Tracks), nil
}

// matchEntries points unmatched entries at library files and returns the tracks still missing.
func (r *Runner) matchEntries(ctx context.Context, entries []formatter.Entry, restrict bool) ([]formatter.Entry, []models.Track, error) {
	lib, _, err := r.repos()
	if err != nil {
		return nil, nil, err
	}

	var pending []models.Track
	var positions []int
	for i, e := range entries {
		if !e.Matched() {
			pending = append(pending, e.Track)
			positions = append(positions, i)
		}
	}

	matched, missing, err := r.matcher().MatchLibrary(ctx, lib, pending, restrict)
	if err != nil {
		return nil, nil, err
	}

	// matched keeps the order of pending, so one pass pairs them up.
	out := slices.Clone(entries)
	j := 0
	for k, i := range positions {
		if j < len(matched) && matched[j].Track.Equal(pending[k]) {
			out[i].Path = matched[j].Item.Path
			out[i].Track = pending[k]
			j++
		}
	}
	return out, missing, nil
}
