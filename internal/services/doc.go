// Package services implements the HTTP clients redlist talks to: the music tracker ([CatalogService])
// and Spotify ([SpotifyService]).
//
// # Rate limiting
//
// Every request goes through a [Client], which takes a token from a [TokenBucket] before sending.
// The tracker gets a primary bucket sized to its published limit (4 requests per 11 seconds) and a
// separate scarce bucket for downloads that spend freeleech tokens. Buckets are backed by
// [rate.Limiter] and are safe to share between goroutines.
//
// Requests dropped by the server are retried twice, after 1s and 2s plus jitter, before failing with
// [shared.ErrTransientNetwork].
//
// # Catalog
//
// [CatalogService] wraps the Gazelle JSON API. Replies arrive in a {status, response, error} envelope:
//   - a reply that is not JSON, or a redirect to the login page, is a [shared.AuthError]
//   - a reply with status other than "success" wraps [shared.ErrAPIRequest]
//   - a JSON reply that does not decode is requested again, up to three attempts, then [shared.ErrDecode]
//
// Artifact downloads must come back as application/x-bittorrent; anything else is a
// [shared.ContentTypeError].
//
// # Spotify
//
// [SpotifyService] uses OAuth2 with automatic token refresh and converts playlist items into
// [models.Track] identities.
package services
