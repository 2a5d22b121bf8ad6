// Package server runs the short-lived HTTP listener that completes OAuth2 authorization code flows
// started from the CLI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] is the only middleware the CLI installs.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter (CSRF protection), exchanges the authorization code for
// tokens, and sends the result through a channel. It only processes one callback.
//
// [WaitForToken] serves a handler on a listener until the callback arrives or the context ends, then
// shuts the listener down. `redlist spotify auth` uses it with the redirect URI's host and port.
package server
