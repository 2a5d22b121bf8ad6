// package services defines the interfaces the resolution pipeline uses to reach HTTP APIs
//
// Catalog (tracker) and Spotify
package services

import (
	"context"

	"github.com/desertthunder/redlist/internal/models"
)

// Service is implemented by every remote API client.
type Service interface {
	// Authenticate establishes a session with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// Name returns the name of the service (e.g., "catalog", "Spotify")
	Name() string
}

// Catalog is the read side of the music tracker used by release resolution.
type Catalog interface {
	// Search returns the release groups matching fields.
	Search(ctx context.Context, fields SearchFields) ([]models.Release, error)

	// ReleaseDetail returns one artifact, with its file list, and its group.
	ReleaseDetail(ctx context.Context, artifactID int) (*models.ReleaseDetail, error)
}

// ArtifactFetcher downloads artifacts and reports how much the user may still download.
type ArtifactFetcher interface {
	// Artifact returns the filename and contents of an artifact's .torrent file.
	Artifact(ctx context.Context, artifactID int, useToken bool) (string, []byte, error)

	// UserStats returns the authenticated user's transfer statistics.
	UserStats(ctx context.Context) (*UserStats, error)
}

// PlaylistSource produces track identities from a remote playlist.
type PlaylistSource interface {
	Service

	// PlaylistTracks fetches a playlist by id or URL.
	PlaylistTracks(ctx context.Context, playlist string) (*models.Playlist, error)
}

var (
	_ Service         = (*CatalogService)(nil)
	_ Catalog         = (*CatalogService)(nil)
	_ ArtifactFetcher = (*CatalogService)(nil)
	_ PlaylistSource  = (*SpotifyService)(nil)
)
