// Package bootstrap assembles a running vdb instance from its config.
//
// Startup runs in phases: open storage, build the registry, register the
// repositories listed in the config, bring up the schema catalog, hydrate
// the registry from the catalog, install change hooks and finally register
// the schema files found in the schema directory.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"vdb/internal/catalog"
	"vdb/internal/config"
	"vdb/internal/handler"
	"vdb/internal/hook"
	"vdb/internal/loader"
	"vdb/internal/proxy"
	"vdb/internal/registry"
	"vdb/internal/repository"
	"vdb/internal/repository/sqlite"
	"vdb/internal/schema"
	"vdb/internal/service"
	"vdb/internal/telemetry"
	"vdb/internal/watcher"
)

// App is a started vdb instance
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Events    *service.EventBus
	Binding   *sqlite.Binding
	Factories *repository.Factories
	Registry  *registry.Registry
	Catalog   *catalog.Catalog
	Hooks     *hook.Registry
	Proxies   *proxy.Set

	Started  time.Time
	Duration time.Duration
	Warnings []string

	tracer trace.Tracer
	now    func() time.Time
}

type options struct {
	logger       *slog.Logger
	tracer       trace.Tracer
	events       *service.EventBus
	constructors map[string]repository.Constructor
	now          func() time.Time
}

// Option configures Run
type Option func(*options)

// WithLogger sets the logger handed to every component
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the tracer handed to the registry and proxies
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithEvents sets the bus components publish on
func WithEvents(bus *service.EventBus) Option {
	return func(o *options) {
		o.events = bus
	}
}

// WithHandlerType registers an additional handler constructor
func WithHandlerType(typ string, c repository.Constructor) Option {
	return func(o *options) {
		o.constructors[typ] = c
	}
}

// WithClock sets the time source of timestamp hooks
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// catalogHandler builds the catalog's own handler; schema names are unique
func catalogHandler(def *schema.Definition) (repository.Handler, error) {
	return sqlite.NewSchemaHandler(def, sqlite.WithUniqueIndex(catalog.KeyName))
}

// Run executes the startup sequence. On error every opened resource is
// released
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := &options{
		logger:       slog.Default(),
		constructors: make(map[string]repository.Constructor),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = telemetry.Tracer()
	}
	if o.events == nil {
		o.events = service.NewEventBus()
	}

	a := &App{
		Config:  cfg,
		Logger:  o.logger,
		Events:  o.events,
		Hooks:   hook.NewRegistry(),
		Proxies: proxy.NewSet(),
		Started: time.Now(),
		tracer:  o.tracer,
		now:     o.now,
	}
	log := a.Logger.With("component", "bootstrap")

	log.Info("phase 1 - opening storage", "dir", cfg.Storage.Dir)
	a.Binding, err = sqlite.New(cfg.Storage.Dir, sqlite.WithLogger(a.Logger))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err != nil {
			a.Binding.Close()
		}
	}()

	log.Info("phase 2 - building registry")
	a.Factories = repository.NewFactories()
	if err := sqlite.RegisterFactories(a.Factories); err != nil {
		return nil, err
	}
	for typ, c := range o.constructors {
		if err := a.Factories.Register(typ, c); err != nil {
			return nil, err
		}
	}
	a.Registry = registry.New(a.Binding,
		registry.WithFactories(a.Factories),
		registry.WithSchemaConstructor(sqlite.Constructor),
		registry.WithEvents(a.Events),
		registry.WithLogger(a.Logger),
		registry.WithTracer(a.tracer),
	)

	log.Info("phase 3 - registering configured repositories", "count", len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		if err := a.Registry.Register(rc); err != nil {
			return nil, fmt.Errorf("register repository %s: %w", rc.Name, err)
		}
	}

	log.Info("phase 4 - starting schema catalog")
	a.Catalog = catalog.New(a.Registry, a.Registry,
		catalog.WithEvents(a.Events),
		catalog.WithLogger(a.Logger),
	)
	if err := a.Catalog.Bootstrap(ctx, a.Registry, catalogHandler); err != nil {
		return nil, fmt.Errorf("bootstrap catalog: %w", err)
	}

	// Hooks are looked up per insert, so they only need to exist before
	// the first request; installing them ahead of the proxies keeps the
	// order obvious.
	log.Info("phase 5 - installing change hooks", "count", len(cfg.Hooks))
	a.installHooks()

	log.Info("phase 6 - hydrating from catalog")
	n, err := a.Catalog.Hydrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate registry: %w", err)
	}
	if err := a.serveCatalogued(ctx); err != nil {
		return nil, err
	}
	log.Info("hydrated", "repositories", n, "proxies", a.Proxies.Len())

	if dir := cfg.Schemas.Dir; dir != "" {
		log.Info("phase 7 - loading schema files", "dir", dir)
		defs, err := loader.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		for _, def := range defs {
			if err := a.AddSchema(ctx, def); err != nil {
				return nil, fmt.Errorf("register schema %s: %w", def.FullName(), err)
			}
		}
	}

	a.Duration = time.Since(a.Started)
	log.Info("complete", "duration", a.Duration, "repositories", a.Registry.Len(), "warnings", len(a.Warnings))
	for _, w := range a.Warnings {
		log.Warn(w)
	}
	return a, nil
}

func (a *App) installHooks() {
	for _, hc := range a.Config.Hooks {
		var hooks []hook.Hook
		if len(hc.Required) > 0 {
			hooks = append(hooks, hook.Required(hc.Required...))
		}
		if hc.Timestamp != "" {
			hooks = append(hooks, hook.Timestamp(hc.Timestamp, a.now))
		}
		if len(hooks) == 0 {
			a.warn("hook for %s/%s does nothing", hc.Authority, hc.Entity)
			continue
		}
		a.Hooks.Register(hc.Authority, hc.Entity, hook.Chain(hooks...))
	}
}

// serveCatalogued creates a proxy for every schema already in the catalog
func (a *App) serveCatalogued(ctx context.Context) error {
	records, err := a.Catalog.Records(ctx)
	if err != nil {
		return fmt.Errorf("list catalog: %w", err)
	}
	for _, rec := range records {
		if rec.Namespace == catalog.Namespace {
			continue
		}
		def, err := schema.ParseString(rec.Definition)
		if err != nil {
			a.warn("catalogued schema %s is unreadable: %v", rec.Name, err)
			continue
		}
		if err := a.AddSchema(ctx, def); err != nil {
			a.warn("catalogued schema %s not served: %v", def.FullName(), err)
		}
	}
	return nil
}

func (a *App) warn(format string, args ...any) {
	a.Warnings = append(a.Warnings, fmt.Sprintf(format, args...))
}

// AddSchema registers def with the catalog and serves it through a proxy
// under its namespace, replacing any earlier proxy for that namespace
func (a *App) AddSchema(ctx context.Context, def *schema.Definition) error {
	p := proxy.New(def, a.Registry,
		proxy.WithHooks(a.Hooks),
		proxy.WithEvents(a.Events),
		proxy.WithLogger(a.Logger),
		proxy.WithTracer(a.tracer),
		proxy.WithWindowSize(a.Config.Window.Rows, a.Config.Window.Bytes.Int()),
	)
	if err := p.Attach(ctx, a.Catalog); err != nil {
		return err
	}
	a.Proxies.Add(p)
	return nil
}

// Reload registers every definition in the schema file at path
func (a *App) Reload(ctx context.Context, path string) error {
	defs, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	var errs []error
	for _, def := range defs {
		if err := a.AddSchema(ctx, def); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.FullName(), err))
		}
	}
	return errors.Join(errs...)
}

// Watch re-registers schema files as they change until ctx is done. It
// returns immediately when watching is disabled
func (a *App) Watch(ctx context.Context) error {
	dir := a.Config.Schemas.Dir
	if dir == "" || !a.Config.Schemas.Watch {
		return nil
	}

	w := watcher.New(dir, func(path string) {
		if err := a.Reload(ctx, path); err != nil {
			a.Logger.Error("failed to reload schema file", "path", path, "error", err)
		}
	},
		watcher.WithFilter(loader.IsSchemaFile),
		watcher.WithDebounce(a.Config.Schemas.Debounce.Duration()),
		watcher.WithLogger(a.Logger),
	)
	if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Routes installs the content and API handlers on mux
func (a *App) Routes(mux *http.ServeMux) {
	handler.NewContentHandler(a.Proxies, a.Registry,
		handler.WithPaging(a.Config.Paging.DefaultSize, a.Config.Paging.MaxSize),
		handler.WithWindow(a.Config.Window.Rows, a.Config.Window.Bytes.Int()),
		handler.WithContentLogger(a.Logger),
	).Register(mux)
	handler.NewAPIHandler(a.Catalog, a, a.Registry, a.Logger).Register(mux)
}

// Close releases storage
func (a *App) Close() error {
	return a.Binding.Close()
}
