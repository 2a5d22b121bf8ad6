package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/redlist/internal/shared"
	"golang.org/x/time/rate"
)

// TokenBucket gates outbound requests. It starts full and refills lazily from elapsed time.
//
// All state lives in a [rate.Limiter], which performs refill-then-deduct under its own lock,
// so concurrent callers never spend the same token twice.
type TokenBucket struct {
	limiter  *rate.Limiter
	capacity int
}

// NewTokenBucket creates a full bucket holding capacity tokens that refills at refill tokens per second.
func NewTokenBucket(capacity int, refill float64) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(refill), capacity), capacity: capacity}
}

// Acquire blocks until a token is available and takes it.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limit: %w", err)
	}
	return nil
}

// Tokens reports the current level, clamped to [0, capacity].
func (b *TokenBucket) Tokens() float64 {
	return max(0, min(b.limiter.Tokens(), float64(b.capacity)))
}

// Capacity is the bucket's burst size.
func (b *TokenBucket) Capacity() int { return b.capacity }

// Drain spends n tokens without waiting. The bucket may go into debt, delaying later acquisitions.
func (b *TokenBucket) Drain(n int) {
	now := time.Now()
	for range n {
		b.limiter.ReserveN(now, 1)
	}
}

var disconnectBackoffs = []time.Duration{1 * time.Second, 2 * time.Second}

const maxJitter = 250 * time.Millisecond

// Client is an [http.Client] wrapper that spends a token from its bucket before every request and
// retries requests the server dropped mid-flight.
type Client struct {
	httpClient *http.Client
	bucket     *TokenBucket
	logger     *log.Logger
	backoffs   []time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient wraps httpClient; a nil client uses [http.DefaultClient].
func NewClient(httpClient *http.Client, bucket *TokenBucket, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		bucket:     bucket,
		logger:     shared.WithLogger(logger, "component", "client"),
		backoffs:   disconnectBackoffs,
		sleep:      sleepContext,
	}
}

// Bucket exposes the primary bucket so login can account for its hidden cost.
func (c *Client) Bucket() *TokenBucket { return c.bucket }

// Do acquires a token and sends req.
//
// A disconnect (EOF, reset, broken pipe, aborted) is retried after each configured backoff plus
// up to 250ms of jitter. Once backoffs run out the error is wrapped in [shared.ErrTransientNetwork].
// Any other transport error is returned as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.bucket != nil {
		if err := c.bucket.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		attemptReq, err := rewind(req)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(attemptReq)
		if err == nil {
			return resp, nil
		}
		if !IsDisconnect(err) {
			return nil, err
		}
		if attempt >= len(c.backoffs) {
			return nil, fmt.Errorf("%w: %s %s after %d attempts: %w", shared.ErrTransientNetwork, req.Method, req.URL.Path, attempt+1, err)
		}

		wait := c.backoffs[attempt] + rand.N(maxJitter)
		c.logger.Warn("server disconnected, backing off", "url", req.URL.Path, "attempt", attempt+1, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// IsDisconnect reports whether err means the server dropped the connection.
func IsDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// rewind returns a request whose body can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
