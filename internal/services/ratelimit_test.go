package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/desertthunder/redlist/internal/shared"
	tu "github.com/desertthunder/redlist/internal/testing"
)

func TestTokenBucket(t *testing.T) {
	t.Run("Burst Then Refill", func(t *testing.T) {
		b := NewTokenBucket(3, 20)
		ctx := context.Background()

		start := time.Now()
		for range 3 {
			if err := b.Acquire(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
			t.Errorf("a full bucket should not wait, took %v", elapsed)
		}

		start = time.Now()
		if err := b.Acquire(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("an empty bucket should wait about 1/refill, took %v", elapsed)
		}
	})

	t.Run("Tokens Are Clamped", func(t *testing.T) {
		b := NewTokenBucket(2, 0.001)
		if got := b.Tokens(); got != 2 {
			t.Errorf("new bucket should be full, got %v", got)
		}
		b.Drain(5)
		if got := b.Tokens(); got != 0 {
			t.Errorf("drained bucket should report 0, got %v", got)
		}
		if b.Capacity() != 2 {
			t.Errorf("unexpected capacity %d", b.Capacity())
		}
	})

	t.Run("No Double Spend", func(t *testing.T) {
		b := NewTokenBucket(5, 0.001)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		var granted atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if b.Acquire(ctx) == nil {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := granted.Load(); got != 5 {
			t.Errorf("expected exactly 5 grants, got %d", got)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		b := NewTokenBucket(1, 0.001)
		b.Drain(1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.Acquire(ctx); err == nil {
			t.Error("expected an error for a cancelled context")
		}
	})
}

func newTestClient(rt http.RoundTripper) (*Client, *[]time.Duration) {
	var waits []time.Duration
	c := NewClient(&http.Client{Transport: rt}, NewTokenBucket(100, 1000), shared.NewLogger(io.Discard))
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestClient(t *testing.T) {
	t.Run("Retries Disconnects", func(t *testing.T) {
		rt := tu.NewScriptedTransport(
			tu.Step{Err: io.EOF},
			tu.Step{Err: syscall.ECONNRESET},
			tu.Step{Response: tu.Respond(http.StatusOK, "text/plain", "ok")},
		)
		c, waits := newTestClient(rt)

		req, _ := http.NewRequest(http.MethodPost, "http://catalog.test/login.php", strings.NewReader("a=b"))
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		resp.Body.Close()

		if rt.Calls() != 3 {
			t.Errorf("expected 3 attempts, got %d", rt.Calls())
		}
		for i, body := range rt.Bodies {
			if body != "a=b" {
				t.Errorf("attempt %d sent body %q", i, body)
			}
		}

		if len(*waits) != 2 {
			t.Fatalf("expected 2 backoffs, got %v", *waits)
		}
		for i, base := range []time.Duration{time.Second, 2 * time.Second} {
			if w := (*waits)[i]; w < base || w >= base+maxJitter {
				t.Errorf("backoff %d = %v, want [%v, %v)", i, w, base, base+maxJitter)
			}
		}
	})

	t.Run("Third Disconnect Propagates", func(t *testing.T) {
		rt := tu.NewScriptedTransport(
			tu.Step{Err: io.ErrUnexpectedEOF},
			tu.Step{Err: syscall.EPIPE},
			tu.Step{Err: syscall.ECONNABORTED},
		)
		c, _ := newTestClient(rt)

		req, _ := http.NewRequest(http.MethodGet, "http://catalog.test/ajax.php", nil)
		_, err := c.Do(req)
		if !errors.Is(err, shared.ErrTransientNetwork) {
			t.Fatalf("expected ErrTransientNetwork, got %v", err)
		}
		if !errors.Is(err, syscall.ECONNABORTED) {
			t.Error("expected the last transport error to stay wrapped")
		}
		if rt.Calls() != 3 {
			t.Errorf("expected 3 attempts, got %d", rt.Calls())
		}
	})

	t.Run("Other Errors Are Not Retried", func(t *testing.T) {
		boom := errors.New("tls handshake failed")
		rt := tu.NewScriptedTransport(tu.Step{Err: boom})
		c, waits := newTestClient(rt)

		req, _ := http.NewRequest(http.MethodGet, "http://catalog.test/ajax.php", nil)
		if _, err := c.Do(req); !errors.Is(err, boom) || errors.Is(err, shared.ErrTransientNetwork) {
			t.Errorf("unexpected error %v", err)
		}
		if rt.Calls() != 1 || len(*waits) != 0 {
			t.Errorf("expected a single attempt, got %d calls and %d waits", rt.Calls(), len(*waits))
		}
	})

	t.Run("Spends One Token Per Call", func(t *testing.T) {
		rt := tu.NewScriptedTransport(
			tu.Step{Err: io.EOF},
			tu.Step{Response: tu.Respond(http.StatusOK, "", "")},
		)
		c, _ := newTestClient(rt)
		c.bucket = NewTokenBucket(2, 0.001)

		req, _ := http.NewRequest(http.MethodGet, "http://catalog.test/", nil)
		if _, err := c.Do(req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := c.Bucket().Tokens(); got < 0.9 || got > 1.1 {
			t.Errorf("expected one token left, got %v", got)
		}
	})
}

func TestIsDisconnect(t *testing.T) {
	if !IsDisconnect(&wrappedErr{io.EOF}) {
		t.Error("wrapped EOF is a disconnect")
	}
	if IsDisconnect(context.DeadlineExceeded) {
		t.Error("deadline is not a disconnect")
	}
}

type wrappedErr struct{ err error }

func (w *wrappedErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrappedErr) Unwrap() error { return w.err }
