// Package proxy exposes repositories to external callers.
//
// External identifiers name the caller's authority in the host position,
// for example vdb://com.example.notes/master/note. The proxy folds that
// authority into the path of an internal identifier, forwards the operation
// to the registry's CRUD surface and wraps query results in a Pager so they
// can be copied out in bounded windows.
//
// A proxy serves requests only after Attach has registered its own schema
// with the catalog.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"vdb/internal/hook"
	"vdb/internal/identifier"
	"vdb/internal/repository"
	"vdb/internal/schema"
	"vdb/internal/service"
)

// Default window budget
const (
	DefaultWindowRows  = 512
	DefaultWindowBytes = 2 << 20
)

// ErrNotAttached is returned by operations on a proxy that was never attached
var ErrNotAttached = errors.New("proxy is not attached")

// Registrar records schema definitions
type Registrar interface {
	RegisterSchema(ctx context.Context, def *schema.Definition) error
}

// Proxy forwards external requests to the internal CRUD surface
type Proxy struct {
	def     *schema.Definition
	surface repository.Surface
	hooks   *hook.Registry
	events  *service.EventBus
	logger  *slog.Logger
	tracer  trace.Tracer

	windowRows  int
	windowBytes int

	attached atomic.Bool
}

// Option configures a Proxy
type Option func(*Proxy)

// WithHooks sets the change hooks consulted on insert
func WithHooks(h *hook.Registry) Option {
	return func(p *Proxy) {
		p.hooks = h
	}
}

// WithEvents publishes content change events on bus
func WithEvents(bus *service.EventBus) Option {
	return func(p *Proxy) {
		p.events = bus
	}
}

// WithLogger sets the proxy's logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTracer sets the tracer used for forwarding spans
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Proxy) {
		p.tracer = tracer
	}
}

// WithWindowSize sets the row and byte budget of windows from NewWindow
func WithWindowSize(rows, bytes int) Option {
	return func(p *Proxy) {
		p.windowRows = rows
		p.windowBytes = bytes
	}
}

// New creates a proxy for the schema def forwarding to surface
func New(def *schema.Definition, surface repository.Surface, opts ...Option) *Proxy {
	p := &Proxy{
		def:         def,
		surface:     surface,
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("vdb"),
		windowRows:  DefaultWindowRows,
		windowBytes: DefaultWindowBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Definition returns the proxy's own schema
func (p *Proxy) Definition() *schema.Definition {
	return p.def
}

// Attach registers the proxy's schema and enables forwarding
func (p *Proxy) Attach(ctx context.Context, registrar Registrar) error {
	if err := registrar.RegisterSchema(ctx, p.def); err != nil {
		return err
	}
	p.attached.Store(true)
	p.logger.Info("proxy attached", "schema", p.def.FullName())
	return nil
}

// Attached reports whether Attach succeeded
func (p *Proxy) Attached() bool {
	return p.attached.Load()
}

// Remap rewrites an external identifier into the internal addressing scheme
func (p *Proxy) Remap(u *url.URL) *url.URL {
	return identifier.ToInternal(u)
}

// NewWindow returns a window sized by the proxy's budget
func (p *Proxy) NewWindow() *Window {
	return NewWindow(p.windowRows, p.windowBytes)
}

// Query forwards a query and wraps the result for paging
func (p *Proxy) Query(ctx context.Context, u *url.URL, q repository.Query) (_ *Pager, err error) {
	ctx, internal, end, err := p.begin(ctx, "proxy.query", u)
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	rs, err := p.surface.Query(ctx, internal, q)
	if err != nil {
		return nil, err
	}
	return NewPager(rs, p.logger), nil
}

// Insert runs the change hook registered for the caller's authority and
// entity, then forwards the insert
func (p *Proxy) Insert(ctx context.Context, u *url.URL, values repository.Values) (_ *url.URL, err error) {
	ctx, internal, end, err := p.begin(ctx, "proxy.insert", u)
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	m, err := identifier.Parse(internal)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = repository.Values{}
	}
	if h, ok := p.hooks.Lookup(m.Repository, m.Entity); ok {
		if err := h.PreInsert(ctx, values); err != nil {
			return nil, err
		}
	}

	created, err := p.surface.Insert(ctx, internal, values)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if created != nil {
		payload["created"] = created.String()
	}
	p.publish(service.EventContentInserted, u, payload)
	return created, nil
}

// Update forwards an update
func (p *Proxy) Update(ctx context.Context, u *url.URL, values repository.Values, selection string, args []string) (_ int64, err error) {
	ctx, internal, end, err := p.begin(ctx, "proxy.update", u)
	if err != nil {
		return 0, err
	}
	defer func() { end(err) }()

	n, err := p.surface.Update(ctx, internal, values, selection, args)
	if err != nil {
		return 0, err
	}
	p.publish(service.EventContentUpdated, u, map[string]any{"affected": n})
	return n, nil
}

// Delete forwards a delete
func (p *Proxy) Delete(ctx context.Context, u *url.URL, selection string, args []string) (_ int64, err error) {
	ctx, internal, end, err := p.begin(ctx, "proxy.delete", u)
	if err != nil {
		return 0, err
	}
	defer func() { end(err) }()

	n, err := p.surface.Delete(ctx, internal, selection, args)
	if err != nil {
		return 0, err
	}
	p.publish(service.EventContentDeleted, u, map[string]any{"affected": n})
	return n, nil
}

// TypeOf forwards a type request
func (p *Proxy) TypeOf(ctx context.Context, u *url.URL) (_ string, err error) {
	ctx, internal, end, err := p.begin(ctx, "proxy.type", u)
	if err != nil {
		return "", err
	}
	defer func() { end(err) }()

	return p.surface.Type(ctx, internal)
}

// begin checks attachment, remaps u and starts a span. The returned func
// ends the span, recording err
func (p *Proxy) begin(ctx context.Context, op string, u *url.URL) (context.Context, *url.URL, func(error), error) {
	if !p.attached.Load() {
		return ctx, nil, nil, ErrNotAttached
	}
	internal := p.Remap(u)

	ctx, span := p.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("vdb.uri", u.String()),
		attribute.String("vdb.internal_uri", internal.String()),
	))
	end := func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
	return ctx, internal, end, nil
}

func (p *Proxy) publish(t service.EventType, u *url.URL, payload map[string]any) {
	payload["uri"] = u.String()
	p.events.Publish(service.NewEvent(t, payload))
}
