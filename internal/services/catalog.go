// Catalog (tracker) API implementation of [Catalog]
//
// Endpoints follow the Gazelle JSON API: ajax.php?action=..., login.php and torrents.php.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

// Search field names understood by the browse action.
const (
	FieldArtist  = "artistname"
	FieldRelease = "groupname"
	FieldFiles   = "filelist"
)

// SessionCookie is the name of the tracker's session cookie.
const SessionCookie = "session"

const (
	defaultCatalogHost  = "https://redacted.sh"
	defaultUserAgent    = "redlist/0.3"
	artifactMediaType   = "application/x-bittorrent"
	artifactContentType = artifactMediaType + "; charset=utf-8"
	maxDecodeAttempts   = 3
	loginTokenCost      = 2
	payloadPreview      = 512
)

// SearchFields is an open set of browse query fields keyed by [FieldArtist], [FieldRelease] and [FieldFiles].
type SearchFields map[string]string

// Validate rejects queries that name neither an artist nor a release.
func (f SearchFields) Validate() error {
	if strings.TrimSpace(f[FieldArtist]) == "" && strings.TrimSpace(f[FieldRelease]) == "" {
		return fmt.Errorf("%w: search needs %s or %s", shared.ErrValidation, FieldArtist, FieldRelease)
	}
	return nil
}

// Without returns a copy of f with keys removed.
func (f SearchFields) Without(keys ...string) SearchFields {
	out := make(SearchFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func (f SearchFields) values() url.Values {
	v := url.Values{}
	for k, val := range f {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// AuthKeys are the per-user keys returned by the index action.
type AuthKeys struct {
	AuthKey  string `json:"authkey"`
	PassKey  string `json:"passkey"`
	UserID   int    `json:"id"`
	Username string `json:"username"`
}

// UserStats holds the transfer statistics of the authenticated user.
type UserStats struct {
	Uploaded      int64   `json:"uploaded"`
	Downloaded    int64   `json:"downloaded"`
	Buffer        int64   `json:"buffer"`
	RequiredRatio float64 `json:"requiredRatio"`
}

type envelope struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

// envelopeError is a well-formed reply whose status is not "success".
type envelopeError struct {
	Action  string
	Message string
	Payload string
}

func (e *envelopeError) Error() string {
	return fmt.Sprintf("%v: action %s: %s", shared.ErrAPIRequest, e.Action, e.Message)
}

func (e *envelopeError) Unwrap() error { return shared.ErrAPIRequest }

var errPayload = errors.New("payload did not decode")

// CatalogService talks to a Gazelle-based music tracker.
//
// Every request goes through a rate-limited [Client]. Authentication keys are written by
// [CatalogService.Authenticate] and only read afterwards, so a single authenticated service can
// be shared by concurrent resolution tasks.
type CatalogService struct {
	host      string
	userAgent string
	client    *Client
	scarce    *TokenBucket
	jar       http.CookieJar
	keys      AuthKeys
	logger    *log.Logger
}

// CatalogOption configures a [CatalogService].
type CatalogOption func(*CatalogService)

// WithCatalogHTTPClient replaces the transport; its cookie jar and redirect policy are overwritten.
func WithCatalogHTTPClient(c *http.Client) CatalogOption {
	return func(s *CatalogService) {
		s.client.httpClient = c
	}
}

// WithCatalogLogger sets the parent logger.
func WithCatalogLogger(l *log.Logger) CatalogOption {
	return func(s *CatalogService) {
		s.logger = shared.WithLogger(l, "component", "catalog")
		s.client.logger = shared.WithLogger(l, "component", "client")
	}
}

// WithBuckets replaces the primary and scarce buckets.
func WithBuckets(primary, scarce *TokenBucket) CatalogOption {
	return func(s *CatalogService) {
		s.client.bucket = primary
		s.scarce = scarce
	}
}

// withBackoffs shortens disconnect backoffs in tests.
func withBackoffs(backoffs ...time.Duration) CatalogOption {
	return func(s *CatalogService) {
		s.client.backoffs = backoffs
	}
}

// NewCatalogService creates a service for config.Host. Buckets are sized from the rate settings.
func NewCatalogService(config shared.CatalogConfig, opts ...CatalogOption) (*CatalogService, error) {
	host := strings.TrimRight(config.Host, "/")
	if host == "" {
		host = defaultCatalogHost
	}
	if _, err := url.ParseRequestURI(host); err != nil {
		return nil, fmt.Errorf("%w: catalog host %q", shared.ErrInvalidConfig, config.Host)
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	primary := NewTokenBucket(max(config.RateBurst, 1), rateOr(shared.RefillRate(config.RateBurst, config.RateWindow), 4.0/11.0))
	scarce := NewTokenBucket(max(config.TokenBurst, 1), rateOr(shared.RefillRate(config.TokenBurst, config.TokenWindow), 1.0/70.0))

	s := &CatalogService{
		host:      host,
		userAgent: userAgent,
		client:    NewClient(&http.Client{Timeout: 60 * time.Second}, primary, nil),
		scarce:    scarce,
		jar:       jar,
		logger:    shared.WithLogger(nil, "component", "catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Redirects point at login.php when a session is rejected; the caller needs to see them.
	hc := *s.client.httpClient
	hc.Jar = jar
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	s.client.httpClient = &hc

	if config.SessionCookie != "" {
		s.SetSession(config.SessionCookie)
	}
	return s, nil
}

func rateOr(r, fallback float64) float64 {
	if r <= 0 {
		return fallback
	}
	return r
}

func (s *CatalogService) Name() string { return "catalog" }

// Keys returns the keys stored by the last successful authentication.
func (s *CatalogService) Keys() AuthKeys { return s.keys }

// SetSession installs a session cookie copied from a browser.
func (s *CatalogService) SetSession(value string) {
	u, _ := url.Parse(s.host)
	s.jar.SetCookies(u, []*http.Cookie{{Name: SessionCookie, Value: value, Path: "/"}})
}

// Authenticate establishes a session and fetches the user's keys.
//
// Recognized credentials are "session", "username" and "password". A session cookie is tried first;
// when it is missing or rejected and a password is present, a form login is performed.
func (s *CatalogService) Authenticate(ctx context.Context, credentials map[string]string) error {
	session, username, password := credentials["session"], credentials["username"], credentials["password"]
	if session == "" && password == "" {
		return fmt.Errorf("%w: catalog session or password", shared.ErrMissingCredentials)
	}

	if session != "" {
		s.SetSession(session)
		err := s.authorize(ctx, username)
		if err == nil || password == "" || !errors.Is(err, shared.ErrAuthFailed) {
			return err
		}
		s.logger.Warn("session rejected, logging in with password", "username", username)
	}
	return s.Login(ctx, username, password)
}

// Login posts the login form and then fetches the user's keys.
//
// The tracker counts the form post and its redirect against the request budget, so two extra
// tokens are drained afterwards.
func (s *CatalogService) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: catalog username and password", shared.ErrMissingCredentials)
	}

	form := url.Values{
		"username":   {username},
		"password":   {password},
		"keeplogged": {"1"},
		"login":      {"Login"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/login.php", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := s.authorize(ctx, username); err != nil {
		return err
	}
	if b := s.client.Bucket(); b != nil {
		b.Drain(loginTokenCost)
	}
	return nil
}

func (s *CatalogService) authorize(ctx context.Context, username string) error {
	var keys AuthKeys
	err := s.call(ctx, "index", nil, &keys)

	var envErr *envelopeError
	if errors.As(err, &envErr) {
		return &shared.AuthError{Status: http.StatusOK, ContentType: "application/json", Payload: envErr.Payload}
	}
	if err != nil {
		return err
	}

	if keys.AuthKey == "" {
		return &shared.AuthError{Status: http.StatusOK, ContentType: "application/json", Payload: "response has no authkey"}
	}
	if username != "" {
		keys.Username = username
	}
	s.keys = keys
	s.logger.Info("authenticated", "username", keys.Username, "id", keys.UserID)
	return nil
}

// Search runs the browse action and returns the matching release groups.
func (s *CatalogService) Search(ctx context.Context, fields SearchFields) ([]models.Release, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	var page struct {
		CurrentPage int              `json:"currentPage"`
		Pages       int              `json:"pages"`
		Results     []models.Release `json:"results"`
	}
	if err := s.call(ctx, "browse", fields.values(), &page); err != nil {
		return nil, err
	}

	s.logger.Debug("search", "fields", fields, "results", len(page.Results))
	return page.Results, nil
}

type detailGroup struct {
	ID        int                        `json:"id"`
	Name      string                     `json:"name"`
	Year      int                        `json:"year"`
	Tags      []string                   `json:"tags"`
	MusicInfo map[string][]models.Credit `json:"musicInfo"`
}

type detailTorrent struct {
	ID          int    `json:"id"`
	Media       string `json:"media"`
	Format      string `json:"format"`
	Encoding    string `json:"encoding"`
	Scene       bool   `json:"scene"`
	HasLog      bool   `json:"hasLog"`
	FileCount   int    `json:"fileCount"`
	Size        int64  `json:"size"`
	Seeders     int    `json:"seeders"`
	Leechers    int    `json:"leechers"`
	Snatched    int    `json:"snatched"`
	Freeleech   bool   `json:"freeTorrent"`
	FileList    string `json:"fileList"`
	FilePath    string `json:"filePath"`
	CanUseToken bool   `json:"canUseToken"`
}

// ReleaseDetail fetches one artifact together with its group, including the file listing.
func (s *CatalogService) ReleaseDetail(ctx context.Context, artifactID int) (*models.ReleaseDetail, error) {
	var detail struct {
		Group   detailGroup   `json:"group"`
		Torrent detailTorrent `json:"torrent"`
	}
	if err := s.call(ctx, "torrent", url.Values{"id": {strconv.Itoa(artifactID)}}, &detail); err != nil {
		return nil, err
	}

	t := detail.Torrent
	artifact := models.Artifact{
		ID:          t.ID,
		Format:      t.Format,
		Encoding:    t.Encoding,
		Media:       t.Media,
		Size:        t.Size,
		FileCount:   t.FileCount,
		Snatches:    t.Snatched,
		Seeders:     t.Seeders,
		Leechers:    t.Leechers,
		Scene:       t.Scene,
		HasLog:      t.HasLog,
		Freeleech:   t.Freeleech,
		CanUseToken: t.CanUseToken,
		FileList:    t.FileList,
		FilePath:    t.FilePath,
	}

	g := detail.Group
	release := models.Release{
		ID:        g.ID,
		Name:      g.Name,
		Year:      g.Year,
		Tags:      g.Tags,
		MusicInfo: g.MusicInfo,
		Artifacts: []models.Artifact{artifact},
	}
	for _, role := range []string{"artists", "dj", "composers", "conductor"} {
		if credits := g.MusicInfo[role]; len(credits) > 0 {
			release.Artist = credits[0].Name
			break
		}
	}

	return &models.ReleaseDetail{Release: release, Artifact: artifact}, nil
}

// UserStats fetches the authenticated user's transfer statistics.
func (s *CatalogService) UserStats(ctx context.Context) (*UserStats, error) {
	if s.keys.UserID == 0 {
		return nil, shared.ErrNotAuthenticated
	}

	var user struct {
		Username string    `json:"username"`
		Stats    UserStats `json:"stats"`
	}
	if err := s.call(ctx, "user", url.Values{"id": {strconv.Itoa(s.keys.UserID)}}, &user); err != nil {
		return nil, err
	}
	return &user.Stats, nil
}

// Artifact downloads the .torrent file for artifactID and returns its filename and contents.
//
// With useToken set, a freeleech token is spent; those downloads also wait on the scarce bucket.
// A response with any media type other than application/x-bittorrent fails with
// [shared.ContentTypeError] and is not retried.
func (s *CatalogService) Artifact(ctx context.Context, artifactID int, useToken bool) (string, []byte, error) {
	if s.keys.AuthKey == "" || s.keys.PassKey == "" {
		return "", nil, shared.ErrNotAuthenticated
	}

	if useToken && s.scarce != nil {
		if err := s.scarce.Acquire(ctx); err != nil {
			return "", nil, err
		}
	}

	q := url.Values{
		"action":       {"download"},
		"id":           {strconv.Itoa(artifactID)},
		"authkey":      {s.keys.AuthKey},
		"torrent_pass": {s.keys.PassKey},
	}
	if useToken {
		q.Set("usetoken", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.host+"/torrents.php?"+q.Encode(), nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download of %d failed: %w", artifactID, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != artifactMediaType {
		return "", nil, &shared.ContentTypeError{Got: contentType, Want: artifactContentType}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read artifact %d: %w", artifactID, err)
	}

	filename := fmt.Sprintf("%d.torrent", artifactID)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, data, nil
}

func (s *CatalogService) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Charset", "utf-8")
}

// call performs an ajax.php request and decodes the envelope's response into out.
//
// Payloads that fail to decode are re-requested up to [maxDecodeAttempts] times in total.
func (s *CatalogService) call(ctx context.Context, action string, params url.Values, out any) error {
	q := url.Values{"action": {action}}
	if s.keys.AuthKey != "" {
		q.Set("auth", s.keys.AuthKey)
	}
	for k, v := range params {
		q[k] = v
	}
	endpoint := s.host + "/ajax.php?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxDecodeAttempts; attempt++ {
		err := s.fetch(ctx, action, endpoint, out)
		if !errors.Is(err, errPayload) {
			return err
		}
		lastErr = err
		s.logger.Warn("could not decode response", "action", action, "attempt", attempt, "err", err)
	}
	return fmt.Errorf("%w: action %s after %d attempts: %v", shared.ErrDecode, action, maxDecodeAttempts, lastErr)
}

func (s *CatalogService) fetch(ctx context.Context, action, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if IsDisconnect(err) {
			return fmt.Errorf("%w: reading %s: %w", shared.ErrTransientNetwork, action, err)
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return &shared.AuthError{Status: resp.StatusCode, ContentType: contentType, Payload: resp.Header.Get("Location")}
	case resp.StatusCode < 200 || resp.StatusCode >= 400:
		return fmt.Errorf("%w: action %s: status %d: %s", shared.ErrAPIRequest, action, resp.StatusCode, shared.Truncate(string(body), payloadPreview))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if !isJSON(contentType) {
			return &shared.AuthError{Status: resp.StatusCode, ContentType: contentType, Payload: shared.Truncate(string(body), payloadPreview)}
		}
		return fmt.Errorf("%w: %v", errPayload, err)
	}

	if env.Status != "success" {
		msg := env.Error
		if msg == "" {
			msg = "status " + strconv.Quote(env.Status)
		}
		return &envelopeError{Action: action, Message: msg, Payload: shared.Truncate(string(body), payloadPreview)}
	}

	if out != nil {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("%w: %v", errPayload, err)
		}
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"))
}
