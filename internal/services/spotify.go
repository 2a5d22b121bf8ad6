// Spotify API implementation of [PlaylistSource]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify does not publish a fixed budget; this stays well under what it tolerates.
	spotifyBurst  = 10
	spotifyRefill = 5.0
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for removed items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPlaylistPage is one page of playlist items.
type SpotifyPlaylistPage struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

// SpotifyPlaylist represents a Spotify playlist with its first page of tracks.
type SpotifyPlaylist struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Owner  SpotifyUser         `json:"owner"`
	Tracks SpotifyPlaylistPage `json:"tracks"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items []SpotifySimplePlaylist `json:"items"`
	Total int                     `json:"total"`
	Next  *string                 `json:"next"`
}

// Identity converts t into a track identity.
//
// The first credited artist becomes the artist and the second, if any, the featured artist.
// The Spotify id is kept as the "spotify_id" attribute.
func (t SpotifyTrack) Identity() (models.Track, error) {
	if len(t.Artists) == 0 {
		return models.Track{}, fmt.Errorf("%w: spotify track %s has no artists", shared.ErrValidation, t.ID)
	}

	opts := []models.TrackOption{
		models.WithAlbum(t.Album.Name),
		models.WithLengthMS(t.DurationMS),
	}
	if len(t.Artists) > 1 {
		opts = append(opts, models.WithFeat(t.Artists[1].Name))
	}
	if t.ID != "" {
		opts = append(opts, models.WithAttr("spotify_id", models.Str(t.ID)))
	}
	return models.NewTrack(t.Artists[0].Name, t.Name, opts...)
}

// SpotifyService reads playlists from the Spotify Web API.
// Uses [oauth2] for authentication; refreshed tokens are reported through the refresh callback.
type SpotifyService struct {
	config         *oauth2.Config
	token          *oauth2.Token
	client         *Client
	baseURL        string
	onTokenRefresh func(*oauth2.Token)
	logger         *log.Logger
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:8765/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"playlist-read-private", "playlist-read-collaborative"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	logger := shared.WithLogger(nil, "component", "spotify")
	return &SpotifyService{
		config:  config,
		client:  NewClient(http.DefaultClient, NewTokenBucket(spotifyBurst, spotifyRefill), logger),
		baseURL: spotifyBaseURL,
		logger:  logger,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// SetLogger replaces the service logger.
func (s *SpotifyService) SetLogger(l *log.Logger) {
	s.logger = shared.WithLogger(l, "component", "spotify")
	s.client.logger = s.logger
}

// SetTokenRefreshCallback registers fn to be called whenever a new token is issued.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
}

// Authenticate performs OAuth2 authentication with Spotify.
//
// Expects an "access_token" (optionally with "refresh_token") or an "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken := credentials["access_token"]; accessToken != "" {
		token := &oauth2.Token{AccessToken: accessToken, RefreshToken: credentials["refresh_token"]}
		if exp, err := time.Parse(time.RFC3339, credentials["expiry"]); err == nil {
			token.Expiry = exp
		}
		s.useToken(ctx, token)
		return nil
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
		}
		s.useToken(ctx, token)
		if s.onTokenRefresh != nil {
			s.onTokenRefresh(token)
		}
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

func (s *SpotifyService) useToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		callback: s.onTokenRefresh,
		last:     token.AccessToken,
	}
	hc := oauth2.NewClient(ctx, source)
	s.client.httpClient = hc
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuthConfig returns the OAuth2 configuration used for the authorization code flow.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// refreshableTokenSource reports each distinct token to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	mu       sync.Mutex
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

// doRequest performs an authenticated GET against the Spotify API, waiting out 429 responses.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = s.baseURL + endpoint
	}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			wait := retryAfter(resp.Header.Get("Retry-After"))
			s.logger.Warn("rate limited by spotify", "wait", wait)
			if err := s.client.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		err = decodeSpotify(resp, result)
		resp.Body.Close()
		return err
	}
}

func decodeSpotify(resp *http.Response, result any) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.ErrPlaylistNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify status %d", shared.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrDecode, err)
		}
	}
	return nil
}

// retryAfter parses a Retry-After header in seconds and adds a second of slack.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		secs = 1
	}
	return time.Duration(secs+1) * time.Second
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserPlaylists retrieves every playlist of the current user.
func (s *SpotifyService) UserPlaylists(ctx context.Context) ([]SpotifySimplePlaylist, error) {
	var all []SpotifySimplePlaylist
	next := "/me/playlists?limit=50"
	for next != "" {
		var page SpotifyPaginatedPlaylists
		if err := s.doRequest(ctx, next, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		next = deref(page.Next)
	}
	return all, nil
}

var (
	playlistURLRe  = regexp.MustCompile(`^https?://open\.spotify\.com/(?:[\w-]+/)?playlist/([A-Za-z0-9]+)`)
	playlistURIRe  = regexp.MustCompile(`^spotify:playlist:([A-Za-z0-9]+)$`)
	playlistIDRe   = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	unsafeFilename = regexp.MustCompile(`[\\/:*?"<>|]`)
)

// ParsePlaylistID accepts a playlist id, a spotify:playlist: URI or an open.spotify.com URL.
func ParsePlaylistID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := playlistURLRe.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if m := playlistURIRe.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if playlistIDRe.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("%w: not a spotify playlist: %q", shared.ErrInvalidArgument, s)
}

// PlaylistTracks fetches a playlist and all of its tracks.
//
// Local files and removed items are skipped. The playlist name is made safe for use as a filename.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlist string) (*models.Playlist, error) {
	id, err := ParsePlaylistID(playlist)
	if err != nil {
		return nil, err
	}

	var sp SpotifyPlaylist
	if err := s.doRequest(ctx, "/playlists/"+url.PathEscape(id), &sp); err != nil {
		return nil, fmt.Errorf("playlist %s: %w", id, err)
	}

	result := &models.Playlist{ID: sp.ID, Name: unsafeFilename.ReplaceAllString(sp.Name, "_"), Source: "spotify"}
	page := sp.Tracks
	for {
		for _, item := range page.Items {
			if item.Track == nil || item.Track.IsLocal {
				continue
			}
			track, err := item.Track.Identity()
			if err != nil {
				s.logger.Warn("skipping track", "id", item.Track.ID, "err", err)
				continue
			}
			result.Tracks = append(result.Tracks, track)
		}

		next := deref(page.Next)
		if next == "" {
			break
		}
		s.logger.Debug("fetching more playlist tracks", "fetched", len(result.Tracks), "total", page.Total)

		page = SpotifyPlaylistPage{}
		if err := s.doRequest(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("playlist %s: %w", id, err)
		}
	}
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
