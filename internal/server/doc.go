// Package server provides the loopback HTTP server used to finish OAuth sign-in from the terminal.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback.
//
// The handler validates the state parameter, exchanges the authorization code for a token,
// and sends the result through a channel. Only the first callback is processed.
//
// # Loopback Flow
//
// [Loopback] ties the pieces together for `vgen auth login`: it listens on the host and port of
// the configured redirect URI, waits for one callback (or the context), and shuts the server down.
package server
