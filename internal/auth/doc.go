// ABOUTME: Package documentation for auth.
// ABOUTME: Explains token verification and identity propagation.

// Package auth handles request authentication for the messaging API.
//
// Requests carry an HS256-signed JWT whose "sub" claim is the user's
// UUID. Middleware verifies the token and attaches an Identity to the
// request context; handlers read it back with FromContext or
// MustFromContext. Websocket upgrades may pass the token as an
// access_token query parameter instead of a header.
//
// JWTVerifier also supports generating tokens, used by the CLI's token
// subcommand for local development.
package auth
