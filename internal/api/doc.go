// ABOUTME: Package documentation for api.
// ABOUTME: Describes the HTTP surface the web client consumes.

// Package api exposes the messaging service over HTTP for the web client.
//
// # Routes
//
// All routes under /api require a bearer JWT (see the auth package):
//
//	POST /api/conversations                      find or create a conversation
//	GET  /api/conversations                      list the caller's conversations
//	GET  /api/conversations/{id}/messages        full message history
//	POST /api/conversations/{id}/messages        send a message
//	POST /api/conversations/{id}/read            reset the caller's unread count
//	GET  /api/conversations/{id}/subscribe       websocket for live updates
//
// # Error Mapping
//
// Service errors map onto status codes: invalid input 400, oversized
// message 422, non-participant 403, unknown conversation 404, creation
// conflict exhaustion 409, store timeout 504, store failure 503.
//
// # Live Updates
//
// The subscribe endpoint upgrades to a websocket and streams messages
// as they commit. A since=<RFC3339> query parameter replays history
// newer than the given time first; a per-connection cache suppresses
// messages that arrive via both replay and live fan-out. When a client
// reads too slowly its subscription fails and the socket closes with
// a try-again-later code; the client reconnects and reconciles via
// the history endpoint.
package api
