// Package server runs the short-lived local HTTP listener used to log in to the source catalog.
//
// # Router
//
// [BasicRouter] wraps [http.ServeMux] with method filtering and a [Middleware] stack. Middleware is applied in
// reverse order (last added wraps first). [RequestLogger] logs each request without its query string.
//
// # OAuth Callback
//
// [OAuthHandler] serves the redirect URI of the authorization code flow. It checks the state parameter,
// exchanges the code for a token and publishes a single [OAuthResult] on [OAuthHandler.Result]. The handler
// accepts one callback only. [CallbackAddr] derives the listen address and route from the configured
// redirect URI, so `libsync auth spotify` listens wherever the Spotify app registration points.
package server
