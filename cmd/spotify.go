package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/redlist/internal/formatter"
	"github.com/desertthunder/redlist/internal/server"
	"github.com/desertthunder/redlist/internal/services"
	"github.com/desertthunder/redlist/internal/shared"
)

const authTimeout = 2 * time.Minute

// playlistLister is implemented by sources that can enumerate the user's playlists.
type playlistLister interface {
	UserPlaylists(ctx context.Context) ([]services.SpotifySimplePlaylist, error)
}

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Listens on the redirect URI's address, opens the browser for authorization and saves the
// exchanged token to the config file.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	addr, err := server.ListenAddr(svc.OAuthConfig().RedirectURL)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	state := shared.GenerateID()
	handler := server.NewOAuthHandler(svc.OAuthConfig(), state)
	authURL := svc.GetAuthURL(state)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	token, err := server.WaitForToken(ctx, ln, handler, r.logger)
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: redlist resolve <playlist url>\n")
	return nil
}

// SpotifyPlaylists lists the current user's playlists.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	src, err := r.playlistSource(ctx)
	if err != nil {
		return err
	}

	lister, ok := src.(playlistLister)
	if !ok {
		return fmt.Errorf("%w: %s cannot list playlists", shared.ErrNotImplemented, src.Name())
	}

	playlists, err := lister.UserPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n\n", p.Tracks.Total)
	}
	return nil
}

// SpotifyTracks prints a playlist in the track list format read by 'resolve'.
func (r *Runner) SpotifyTracks(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("playlist")
	if id == "" {
		return fmt.Errorf("%w: playlist id or URL", shared.ErrMissingArgument)
	}

	src, err := r.playlistSource(ctx)
	if err != nil {
		return err
	}

	playlist, err := src.PlaylistTracks(ctx, id)
	if err != nil {
		return err
	}

	data := formatter.ExportToText(playlist.Tracks)
	if out := cmd.String("output"); out != "" {
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write track list: %w", err)
		}
		r.writePlain("✓ %d tracks from %s written to %s\n", playlist.Len(), playlist.Name, out)
		return nil
	}
	return r.writePlain("%s", data)
}
