// Package registry maps resource identifiers to lazily built repository
// handlers.
//
// Configs are registered once by name. The first request that addresses an
// entity of a repository builds its handler: from the schema definition when
// the config carries one, otherwise through the factory registered for the
// config's handler type. The store is then provisioned with the handler's
// initializer and the handler is attached. A handler is built at most once;
// a failed build leaves the entry unbuilt so the next request retries.
package registry

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"vdb/internal/domain"
	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/repository"
	"vdb/internal/service"
)

// TypePrefix prefixes the descriptors of bare references
const TypePrefix = "vnd." + identifier.Authority + "/"

// Registry is the process-wide catalog of repositories
type Registry struct {
	binding   repository.Binding
	factories *repository.Factories
	construct repository.SchemaConstructor
	events    *service.EventBus
	logger    *slog.Logger
	tracer    trace.Tracer

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	config domain.RepositoryConfig

	mu      sync.Mutex
	handler repository.Handler
}

// Option configures a Registry
type Option func(*Registry)

// WithFactories sets the handler factories used for configs without a schema
func WithFactories(f *repository.Factories) Option {
	return func(r *Registry) {
		r.factories = f
	}
}

// WithSchemaConstructor sets how handlers are built from schema definitions
func WithSchemaConstructor(c repository.SchemaConstructor) Option {
	return func(r *Registry) {
		r.construct = c
	}
}

// WithEvents publishes registry events on bus
func WithEvents(bus *service.EventBus) Option {
	return func(r *Registry) {
		r.events = bus
	}
}

// WithLogger sets the registry's logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithTracer sets the tracer used for handler construction spans
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

// New creates an empty registry backed by binding
func New(binding repository.Binding, opts ...Option) *Registry {
	r := &Registry{
		binding:   binding,
		factories: repository.NewFactories(),
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("vdb"),
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds config under its name. Registering a known name is a no-op
func (r *Registry) Register(config domain.RepositoryConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.entries[config.Name]; exists {
		r.mu.Unlock()
		r.logger.Debug("repository already registered", "repository", config.Name)
		return nil
	}
	r.entries[config.Name] = &entry{config: config}
	r.mu.Unlock()

	r.logger.Info("registered repository", "repository", config.Name, "strategy", config.Strategy())
	r.events.Publish(service.NewEvent(service.EventRepositoryRegistered, map[string]any{
		"repository": config.Name,
		"namespace":  config.Namespace,
		"strategy":   config.Strategy(),
	}))
	return nil
}

// Resolve returns the handler serving the entity addressed by u, building it
// on first use
func (r *Registry) Resolve(ctx context.Context, u *url.URL) (repository.Handler, error) {
	_, h, err := r.resolve(ctx, u)
	return h, err
}

func (r *Registry) resolve(ctx context.Context, u *url.URL) (identifier.Match, repository.Handler, error) {
	m, e, err := r.match(u)
	if err != nil {
		return identifier.Match{}, nil, err
	}
	if m.Kind == identifier.KindRepository && !m.HasEntity() {
		return identifier.Match{}, nil, vdberrors.WithMetadata(vdberrors.CodeBareRepositoryReference,
			"only a repository was specified: "+u.String(),
			map[string]string{"repository": m.Repository})
	}

	h, err := r.build(ctx, e)
	if err != nil {
		return identifier.Match{}, nil, err
	}
	return m, h, nil
}

// ResolveType returns the type descriptor of u. References without an entity
// get a fixed descriptor per reference kind; entities are typed by their
// handler
func (r *Registry) ResolveType(ctx context.Context, u *url.URL) (string, error) {
	m, e, err := r.match(u)
	if err != nil {
		return "", err
	}
	if !m.HasEntity() {
		return TypePrefix + m.Kind.String(), nil
	}

	h, err := r.build(ctx, e)
	if err != nil {
		return "", err
	}
	return h.Type(ctx, m)
}

// BuildByName builds the named repository's handler without a request
func (r *Registry) BuildByName(ctx context.Context, name string) error {
	e, ok := r.entry(name)
	if !ok {
		return unregistered(name)
	}
	_, err := r.build(ctx, e)
	return err
}

// Mount registers config with a handler that was constructed by the caller.
// The store is provisioned and the handler attached immediately; factories
// and schema construction are bypassed
func (r *Registry) Mount(ctx context.Context, config domain.RepositoryConfig, h repository.Handler) error {
	if err := config.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	e, exists := r.entries[config.Name]
	if !exists {
		e = &entry{config: config}
		r.entries[config.Name] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handler != nil {
		return nil
	}
	if err := r.install(ctx, e, h); err != nil {
		return err
	}
	r.logger.Info("mounted repository", "repository", config.Name)
	return nil
}

// Lookup returns the config registered under name
func (r *Registry) Lookup(name string) (domain.RepositoryConfig, bool) {
	e, ok := r.entry(name)
	if !ok {
		return domain.RepositoryConfig{}, false
	}
	return e.config, true
}

// Configs returns every registered config sorted by name
func (r *Registry) Configs() []domain.RepositoryConfig {
	r.mu.RLock()
	configs := make([]domain.RepositoryConfig, 0, len(r.entries))
	for _, e := range r.entries {
		configs = append(configs, e.config)
	}
	r.mu.RUnlock()

	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs
}

// Built reports whether the named repository's handler has been built
func (r *Registry) Built(name string) bool {
	e, ok := r.entry(name)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler != nil
}

// Len returns the number of registered repositories
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) entry(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

func (r *Registry) match(u *url.URL) (identifier.Match, *entry, error) {
	m, err := identifier.Parse(u)
	if err != nil {
		return identifier.Match{}, nil, err
	}
	e, ok := r.entry(m.Repository)
	if !ok {
		return identifier.Match{}, nil, unregistered(m.Repository)
	}
	return m, e, nil
}

func unregistered(name string) error {
	return vdberrors.WithMetadata(vdberrors.CodeUnregisteredRepository,
		"unregistered repository: "+name,
		map[string]string{"repository": name})
}
