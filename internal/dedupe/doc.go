// ABOUTME: Package documentation for dedupe.
// ABOUTME: Explains the role of the cache on the realtime delivery path.

// Package dedupe provides a bounded, TTL-based cache of seen message IDs.
//
// A realtime subscriber that asks for history replay can receive the same
// message twice: once from the replay query and once from live fan-out if
// the message committed while the replay was running. Each connection
// passes delivered IDs through a Cache; Observe reports whether an ID is
// new, and the handler skips delivery for repeats.
//
// The cache is size-bounded with oldest-first eviction, so a long-lived
// connection cannot grow it without limit. A background sweeper removes
// expired entries; call Close to stop it.
package dedupe
