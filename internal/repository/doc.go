// Package repository defines the handler contract served by every vdb
// repository.
//
// A Handler serves CRUD operations for one repository. Handlers are built
// lazily by the registry, either from a schema definition through a
// SchemaConstructor or from an explicit handler type through Factories.
// After construction the registry asks the Binding to provision the
// repository's store with the handler's Initializer, then attaches the
// handler to its Host.
//
// # Result Sets
//
// Queries return a ResultSet, a positioned cursor over materialized rows.
// The proxy package copies result sets into bounded windows for transfer.
//
// # SQLite Implementation
//
// The sqlite subpackage provides the storage binding and the generic
// schema-driven handler.
package repository
