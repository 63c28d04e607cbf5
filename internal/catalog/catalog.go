// Package catalog implements the schema catalog, the self-hosted repository
// that stores every registered schema definition.
//
// The catalog is itself a repository: its own definition is a row of its own
// table. Bootstrap therefore mounts the catalog's handler directly, before
// any other repository is hydrated from it.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"vdb/internal/domain"
	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/repository"
	"vdb/internal/schema"
	"vdb/internal/service"
)

const (
	// Repository is the name the catalog is registered under
	Repository = "vdb.catalog"
	// Namespace is the namespace of the catalog's own schema
	Namespace = "vdb.catalog"
	// Entity is the catalog's entity name
	Entity = "schema_registry"

	KeyName      = "name"
	KeyNamespace = "namespace"
	KeySchema    = "schema"
)

const definitionText = `{
  "type": "record",
  "name": "schema_registry",
  "namespace": "vdb.catalog",
  "doc": "Registered schema definitions",
  "fields": [
    {"name": "name", "type": "string"},
    {"name": "namespace", "type": "string"},
    {"name": "schema", "type": "string"}
  ]
}`

var ownDefinition = schema.MustParse(definitionText)

// Definition returns the catalog's own schema
func Definition() *schema.Definition {
	return ownDefinition
}

// URI returns the identifier of the catalog's entity collection
func URI() *url.URL {
	base := identifier.BranchURI(identifier.Authority, Repository, identifier.DefaultBranch)
	return identifier.EntityURI(base, Entity)
}

// Registrar accepts repository configs
type Registrar interface {
	Register(config domain.RepositoryConfig) error
}

// Mounter installs pre-constructed handlers
type Mounter interface {
	Mount(ctx context.Context, config domain.RepositoryConfig, h repository.Handler) error
}

// Catalog reconciles schema registrations against stored definitions
type Catalog struct {
	surface   repository.Surface
	registrar Registrar
	migrator  Migrator
	events    *service.EventBus
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Catalog
type Option func(*Catalog)

// WithMigrator sets the hook run before a stored definition is replaced
func WithMigrator(m Migrator) Option {
	return func(c *Catalog) {
		c.migrator = m
	}
}

// WithEvents publishes catalog events on bus
func WithEvents(bus *service.EventBus) Option {
	return func(c *Catalog) {
		c.events = bus
	}
}

// WithLogger sets the catalog's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// New creates a catalog that stores rows through surface and registers
// schema-backed repositories with registrar
func New(surface repository.Surface, registrar Registrar, opts ...Option) *Catalog {
	c := &Catalog{
		surface:   surface,
		registrar: registrar,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.migrator == nil {
		c.migrator = NewProbeMigrator(surface, c.logger)
	}
	return c
}

// Bootstrap constructs the catalog's own handler, mounts it and records the
// catalog's definition in itself
func (c *Catalog) Bootstrap(ctx context.Context, mounter Mounter, newHandler repository.SchemaConstructor) error {
	def := Definition()
	h, err := newHandler(def)
	if err != nil {
		return vdberrors.Construction(Repository, vdberrors.StageInstantiate, err)
	}

	config := domain.RepositoryConfig{
		Name:      Repository,
		Namespace: Namespace,
		Schema:    def.String(),
	}
	if err := mounter.Mount(ctx, config, h); err != nil {
		return err
	}

	if err := c.RegisterSchema(ctx, def); err != nil {
		return fmt.Errorf("failed to catalog own schema: %w", err)
	}
	c.logger.Info("schema catalog ready", "repository", Repository)
	return nil
}

// RegisterSchema records def. A new name is inserted and its namespace
// registered as a repository; a structurally different definition is
// migrated and then replaces the stored one; an equal one is left alone
func (c *Catalog) RegisterSchema(ctx context.Context, def *schema.Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("checking schema registration", "schema", def.FullName())

	rs, err := c.surface.Query(ctx, URI(), repository.Query{
		Projection: []string{KeySchema},
		Selection:  KeyName + " = ?",
		Args:       []string{def.Name},
	})
	if err != nil {
		return vdberrors.Wrap(vdberrors.CodeCatalogUnavailable, "unable to query schema catalog", err)
	}
	if rs == nil {
		c.logger.Error("schema catalog returned no result set")
		return vdberrors.ErrCatalogUnavailable
	}
	defer rs.Close()

	if rs.Count() == 0 {
		return c.insert(ctx, def)
	}

	rs.Next()
	stored, err := rs.Field(0)
	if err != nil {
		return fmt.Errorf("failed to read stored schema %s: %w", def.Name, err)
	}
	current, err := schema.ParseString(stored.String)
	if err != nil {
		return fmt.Errorf("stored schema %s is unreadable: %w", def.Name, err)
	}

	if current.Equal(def) {
		c.logger.Debug("schema unchanged", "schema", def.FullName())
		return nil
	}
	return c.migrate(ctx, current, def)
}

func (c *Catalog) insert(ctx context.Context, def *schema.Definition) error {
	values := repository.Values{
		KeyName:      def.Name,
		KeyNamespace: def.Namespace,
		KeySchema:    def.String(),
	}
	if _, err := c.surface.Insert(ctx, URI(), values); err != nil {
		return fmt.Errorf("failed to insert schema %s: %w", def.Name, err)
	}

	if err := c.registrar.Register(recordConfig(def)); err != nil {
		return fmt.Errorf("failed to register repository %s: %w", def.Namespace, err)
	}

	c.logger.Info("registered schema", "schema", def.FullName(), "fingerprint", def.Fingerprint())
	c.events.Publish(service.NewEvent(service.EventSchemaRegistered, map[string]any{
		"name":        def.Name,
		"namespace":   def.Namespace,
		"fingerprint": def.Fingerprint(),
	}))
	return nil
}

func (c *Catalog) migrate(ctx context.Context, current, next *schema.Definition) error {
	c.logger.Info("schema changed, migrating", "schema", next.FullName(),
		"from", current.Fingerprint(), "to", next.Fingerprint())

	if err := c.migrator.Migrate(ctx, current, next); err != nil {
		return fmt.Errorf("failed to migrate schema %s: %w", next.Name, err)
	}

	if _, err := c.surface.Update(ctx, URI(),
		repository.Values{KeyNamespace: next.Namespace, KeySchema: next.String()},
		KeyName+" = ?", []string{next.Name},
	); err != nil {
		return fmt.Errorf("failed to update schema %s: %w", next.Name, err)
	}

	// A schema that moved namespace is served from its new repository
	if next.Namespace != current.Namespace {
		if err := c.registrar.Register(recordConfig(next)); err != nil {
			return fmt.Errorf("failed to register repository %s: %w", next.Namespace, err)
		}
	}

	c.events.Publish(service.NewEvent(service.EventSchemaMigrated, map[string]any{
		"name":      next.Name,
		"namespace": next.Namespace,
		"from":      current.Fingerprint(),
		"to":        next.Fingerprint(),
	}))
	return nil
}

// recordConfig is the repository a catalogued schema is served from
func recordConfig(def *schema.Definition) domain.RepositoryConfig {
	return domain.RepositoryConfig{
		Name:      def.Namespace,
		Namespace: def.Namespace,
		Schema:    def.String(),
	}
}
