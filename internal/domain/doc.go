// Package domain defines the core domain types for vdb.
//
// # Repositories
//
// RepositoryConfig describes a named, schema-described data collection. A
// config carries either a raw schema definition, an explicit handler type, or
// both. When a schema definition is present it decides how the repository's
// handler is built.
//
// # Schema Catalog
//
// SchemaRecord is a row of the schema catalog, the self-hosted repository
// that stores every registered schema definition, including its own.
//
// # Design Principles
//
// - Plain value types with JSON and YAML tags
// - No database or external dependencies
package domain
