// Package service carries the event bus that connects the registry, the
// schema catalog and the access proxy to real-time clients.
//
// # Event System
//
// Components publish events via EventBus. The serve command forwards them
// to connected clients via Server-Sent Events (SSE). Event types cover
// repository registration, handler construction, schema registration and
// migration, and proxied content changes.
//
// Publishing never blocks: a subscriber whose channel is full misses the
// event.
package service
