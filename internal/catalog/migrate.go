package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/repository"
	"vdb/internal/schema"
)

// Migrator runs before a stored definition is replaced by a structurally
// different one. An error keeps the stored definition
type Migrator interface {
	Migrate(ctx context.Context, current, next *schema.Definition) error
}

// MigratorFunc adapts a function to Migrator
type MigratorFunc func(ctx context.Context, current, next *schema.Definition) error

// Migrate implements Migrator
func (f MigratorFunc) Migrate(ctx context.Context, current, next *schema.Definition) error {
	return f(ctx, current, next)
}

// ProbeMigrator reads the row ids of the current entity and transforms
// nothing. Column changes are applied by the store when the repository's
// handler is next built. An entity the registry does not serve, such as a
// second schema sharing a namespace, has nothing to probe
type ProbeMigrator struct {
	surface repository.Surface
	logger  *slog.Logger
}

// NewProbeMigrator creates a ProbeMigrator reading through surface
func NewProbeMigrator(surface repository.Surface, logger *slog.Logger) *ProbeMigrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeMigrator{surface: surface, logger: logger}
}

// Migrate implements Migrator
func (p *ProbeMigrator) Migrate(ctx context.Context, current, next *schema.Definition) error {
	base := identifier.BranchURI(identifier.Authority, current.Namespace, identifier.DefaultBranch)
	u := identifier.EntityURI(base, current.Name)

	rs, err := p.surface.Query(ctx, u, repository.Query{Projection: []string{schema.ColumnID}})
	if errors.Is(err, vdberrors.ErrNotFound) || errors.Is(err, vdberrors.ErrUnregisteredRepository) {
		p.logger.Info("migration probe skipped", "schema", current.FullName(), "uri", u.String(), "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", u, err)
	}
	if rs == nil {
		return nil
	}
	defer rs.Close()

	p.logger.Info("migration probe", "schema", current.FullName(), "rows", rs.Count(),
		"from", current.Fingerprint(), "to", next.Fingerprint())
	return nil
}
