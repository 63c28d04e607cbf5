package registry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	vdberrors "vdb/internal/errors"
	"vdb/internal/repository"
	"vdb/internal/schema"
	"vdb/internal/service"
)

// build returns the entry's handler, constructing it on first use. The entry
// lock serializes concurrent first requests
func (r *Registry) build(ctx context.Context, e *entry) (repository.Handler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handler != nil {
		return e.handler, nil
	}

	name := e.config.Name
	ctx, span := r.tracer.Start(ctx, "registry.build", trace.WithAttributes(
		attribute.String("vdb.repository", name),
		attribute.String("vdb.strategy", e.config.Strategy()),
	))
	defer span.End()

	h, err := r.instantiate(e)
	if err == nil {
		err = r.install(ctx, e, h)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		stage, _ := vdberrors.StageOf(err)
		r.logger.Error("failed to build handler", "repository", name, "stage", stage, "error", err)
		r.events.Publish(service.NewEvent(service.EventHandlerBuildFailed, map[string]any{
			"repository": name,
			"stage":      string(stage),
		}))
		return nil, err
	}

	r.logger.Info("built handler", "repository", name, "strategy", e.config.Strategy())
	r.events.Publish(service.NewEvent(service.EventHandlerBuilt, map[string]any{
		"repository": name,
		"strategy":   e.config.Strategy(),
	}))
	return e.handler, nil
}

// instantiate creates a handler for e without provisioning it
func (r *Registry) instantiate(e *entry) (repository.Handler, error) {
	name := e.config.Name

	if e.config.HasSchema() {
		if r.construct == nil {
			return nil, vdberrors.Construction(name, vdberrors.StageLookup,
				fmt.Errorf("no schema constructor configured"))
		}
		def, err := schema.ParseString(e.config.Schema)
		if err != nil {
			return nil, vdberrors.Construction(name, vdberrors.StageInstantiate, err)
		}
		h, err := r.construct(def)
		if err != nil {
			return nil, vdberrors.Construction(name, vdberrors.StageInstantiate, err)
		}
		return h, nil
	}

	h, err := r.factories.New(e.config.HandlerType)
	if err != nil {
		stage := vdberrors.StageInstantiate
		if errors.Is(err, repository.ErrUnknownHandlerType) {
			stage = vdberrors.StageLookup
		}
		return nil, vdberrors.Construction(name, stage, err)
	}
	return h, nil
}

// install provisions the store for h, attaches it and stores it on e.
// Callers hold e.mu
func (r *Registry) install(ctx context.Context, e *entry, h repository.Handler) error {
	name := e.config.Name

	if err := r.binding.Provision(ctx, name, h.Initializer()); err != nil {
		return vdberrors.Construction(name, vdberrors.StageProvision, err)
	}

	db, err := r.binding.Store(ctx, name)
	if err != nil {
		return vdberrors.Construction(name, vdberrors.StageProvision, err)
	}

	host := repository.Host{
		Repository: name,
		DB:         db,
		Logger:     r.logger.With("repository", name),
	}
	if err := h.Attach(ctx, host); err != nil {
		return vdberrors.Construction(name, vdberrors.StageAttach, err)
	}

	e.handler = h
	return nil
}
