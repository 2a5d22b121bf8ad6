package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// API and transport errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTransientNetwork   = fmt.Errorf("connection dropped by server")
	ErrDecode             = fmt.Errorf("failed to decode response payload")
	ErrWrongContentType   = fmt.Errorf("unexpected content type")
	ErrInsufficientBuffer = fmt.Errorf("not enough buffer")
	ErrAborted            = fmt.Errorf("aborted by user")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation failed")
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// AuthError is returned when the catalog rejects a session or answers with something other than JSON.
//
// Payload holds the raw body (truncated) for diagnostics.
type AuthError struct {
	Status      int
	ContentType string
	Payload     string
}

func (e *AuthError) Error() string {
	if e.Payload == "" {
		return fmt.Sprintf("%v: status %d", ErrAuthFailed, e.Status)
	}
	return fmt.Sprintf("%v: status %d (%s): %s", ErrAuthFailed, e.Status, e.ContentType, e.Payload)
}

func (e *AuthError) Unwrap() error { return ErrAuthFailed }

// ContentTypeError is returned when an artifact download answers with the wrong media type.
type ContentTypeError struct {
	Got  string
	Want string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("%v: got %q, want %q", ErrWrongContentType, e.Got, e.Want)
}

func (e *ContentTypeError) Unwrap() error { return ErrWrongContentType }

// Truncate shortens s to at most n bytes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
