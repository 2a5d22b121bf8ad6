package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/services"
	"github.com/desertthunder/redlist/internal/shared"
)

// CatalogLogin authenticates with the tracker and prints the user and buffer.
func (r *Runner) CatalogLogin(ctx context.Context, cmd *cli.Command) error {
	catalog, err := r.catalogService(ctx)
	if err != nil {
		return err
	}

	keys := catalog.Keys()
	r.writePlain("✓ Logged in as %s (id %d)\n", keys.Username, keys.UserID)

	stats, err := catalog.UserStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read user stats: %w", err)
	}
	r.writePlain("  Uploaded:   %s\n", humanize.IBytes(uint64(max(stats.Uploaded, 0))))
	r.writePlain("  Downloaded: %s\n", humanize.IBytes(uint64(max(stats.Downloaded, 0))))
	r.writePlain("  Buffer:     %s\n", humanize.IBytes(uint64(max(stats.Buffer, 0))))
	return nil
}

// CatalogSearch runs one browse query and prints the raw candidates.
func (r *Runner) CatalogSearch(ctx context.Context, cmd *cli.Command) error {
	fields := services.SearchFields{
		services.FieldArtist:  cmd.String("artist"),
		services.FieldRelease: cmd.String("album"),
		services.FieldFiles:   cmd.String("title"),
	}
	if err := fields.Validate(); err != nil {
		return err
	}

	catalog, err := r.catalogService(ctx)
	if err != nil {
		return err
	}

	releases, err := catalog.Search(ctx, fields)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(releases, true)
	}

	r.writePlain("Found %d releases:\n\n", len(releases))
	for _, rel := range releases {
		r.writePlain("%s (%d) #%d\n", rel.String(), rel.Year, rel.ID)
		for _, a := range rel.Artifacts {
			r.writePlain("  %d\t%s\t%s\t%d seeders\n", a.ID, a.Descriptor(), humanize.IBytes(uint64(a.Size)), a.Seeders)
		}
	}
	return nil
}

// CatalogResolve runs the resolver for a single track.
func (r *Runner) CatalogResolve(ctx context.Context, cmd *cli.Command) error {
	opts := []models.TrackOption{models.WithAlbum(cmd.String("album"))}
	if length := cmd.String("length"); length != "" {
		opts = append(opts, models.WithLengthString(length))
	}
	track, err := models.NewTrack(cmd.String("artist"), cmd.String("title"), opts...)
	if err != nil {
		return fmt.Errorf("%w: --artist and --title are required", err)
	}

	catalog, err := r.catalogService(ctx)
	if err != nil {
		return err
	}
	resolver, err := r.resolver(catalog)
	if err != nil {
		return err
	}

	res, err := resolver.Resolve(ctx, track, cmd.Bool("restrict") || r.config.Matching.RestrictAlbum)
	r.writePlain("Track: %s\n", track)
	r.writePlain("Phase: %s\n", res.Phase)
	if res.Query.Artist != track.Artist {
		r.writePlain("Query: %s\n", res.Query)
	}
	if res.Release != nil {
		r.writePlain("Release: %s\n", res.Release)
	}
	if a, ok := res.Artifact(); ok {
		r.writePlain("Artifact: %d (%s, %s) found in %s, distance %.3f\n",
			a.ID, a.Descriptor(), humanize.IBytes(uint64(a.Size)), res.FoundIn, res.Distance)
	}
	if err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, track)
	}
	return nil
}
