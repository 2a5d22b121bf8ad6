package server

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/desertthunder/redlist/internal/shared"
)

// OAuthResult is the outcome of one authorization: a token or the reason there is none.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler receives the authorization code redirect and exchanges it for a token.
//
// Only the first callback is processed; the result is delivered once on [OAuthHandler.Result].
type OAuthHandler struct {
	config  *oauth2.Config
	state   string
	path    string
	results chan OAuthResult
	handled atomic.Bool
	once    sync.Once
}

// NewOAuthHandler creates a handler for config's redirect URL. state must match the value sent
// with the authorization request.
func NewOAuthHandler(config *oauth2.Config, state string) *OAuthHandler {
	path := "/callback"
	if u, err := url.Parse(config.RedirectURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return &OAuthHandler{
		config:  config,
		state:   state,
		path:    path,
		results: make(chan OAuthResult, 1),
	}
}

// Routes returns the path of the redirect URL.
func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.handled.CompareAndSwap(false, true) {
		http.Error(w, "callback already processed", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed))
		return
	}

	code := query.Get("code")
	if code == "" {
		reason := query.Get("error")
		if desc := query.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: spotify denied access (%s)", shared.ErrAuthFailed, reason))
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, fmt.Errorf("%w: token exchange failed: %w", shared.ErrAuthFailed, err))
		return
	}

	h.Send(OAuthResult{Token: token})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	authorizedPage.Execute(w, "redlist can now read your playlists. You can close this window.")
}

func (h *OAuthHandler) fail(w http.ResponseWriter, status int, err error) {
	h.Send(OAuthResult{err: err})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	authorizedPage.Execute(w, err.Error())
}

// Send delivers result unless one was already delivered.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result yields exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

var authorizedPage = template.Must(template.New("authorized").Parse(`<!DOCTYPE html>
<html>
<head><title>redlist</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
  <h1>redlist</h1>
  <p>{{.}}</p>
</body>
</html>
`))
