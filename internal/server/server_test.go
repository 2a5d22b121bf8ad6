package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/redlist/internal/shared"
)

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://127.0.0.1:8765/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example/authorize", TokenURL: tokenURL},
	}
}

func TestOAuthHandler(t *testing.T) {
	tokens := tokenServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantToken  bool
	}{
		{"Success", "state=xyz&code=good-code", http.StatusOK, true},
		{"Wrong State", "state=abc&code=good-code", http.StatusBadRequest, false},
		{"Denied", "state=xyz&error=access_denied", http.StatusBadRequest, false},
		{"Exchange Fails", "state=xyz&code=bad-code", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOAuthHandler(testConfig(tokens.URL), "xyz")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			result := <-h.Result()
			if tt.wantToken {
				if result.Error() != nil || result.Token == nil || result.Token.AccessToken != "access" {
					t.Errorf("unexpected result %+v (%v)", result.Token, result.Error())
				}
				return
			}
			if !errors.Is(result.Error(), shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", result.Error())
			}
		})
	}

	t.Run("Second Callback Rejected", func(t *testing.T) {
		h := NewOAuthHandler(testConfig(tokens.URL), "xyz")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=xyz&code=good-code", nil))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callback?state=xyz&code=good-code", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestBasicRouter(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewBasicRouter()
	router.Use(mw("outer"), mw("inner"))
	router.Handle("post", "/hook", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/hook", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("middleware order = %v", order)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hook", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestListenAddr(t *testing.T) {
	addr, err := ListenAddr("http://127.0.0.1:8765/callback")
	if err != nil || addr != "127.0.0.1:8765" {
		t.Errorf("ListenAddr() = %q, %v", addr, err)
	}
	if _, err := ListenAddr("http://localhost/callback"); !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without a port, got %v", err)
	}
}

func TestWaitForToken(t *testing.T) {
	tokens := tokenServer(t)
	logger := shared.NewLogger(io.Discard)

	t.Run("Receives Token", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		h := NewOAuthHandler(testConfig(tokens.URL), "xyz")

		go func() {
			resp, err := http.Get("http://" + ln.Addr().String() + "/callback?state=xyz&code=good-code")
			if err == nil {
				resp.Body.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		token, err := WaitForToken(ctx, ln, h, logger)
		if err != nil {
			t.Fatalf("WaitForToken() error = %v", err)
		}
		if token.RefreshToken != "refresh" {
			t.Errorf("unexpected token %+v", token)
		}
	})

	t.Run("Context Ends", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = WaitForToken(ctx, ln, NewOAuthHandler(testConfig(tokens.URL), "xyz"), logger)
		if !errors.Is(err, shared.ErrAuthFailed) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected a timed out authorization, got %v", err)
		}
	})
}
