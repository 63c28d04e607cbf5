// Package handler implements the vdb HTTP API.
//
// # Content
//
// ContentHandler exposes repositories under /content/{authority}/{path}.
// The authority selects the proxy that serves the request; the internal
// authority "vdb" addresses the registry directly. Queries page through
// results with opaque page tokens, writes take JSON objects and
// where.<column>=<value> query parameters select rows.
//
// # Catalog
//
// APIHandler lists and registers schemas, exports the catalog and reports
// the repositories known to the registry.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes (200, 201).
// Error responses return JSON with {error, code, details} structure; the
// status follows the error code.
//
// Middleware provides panic recovery, CORS and request logging.
package handler
