package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"vdb/internal/domain"
	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/repository"
	"vdb/internal/schema"
)

// All returns a repository config for every catalogued schema
func (c *Catalog) All(ctx context.Context) ([]domain.RepositoryConfig, error) {
	rows, err := c.rows(ctx, repository.Query{
		Projection: []string{KeyNamespace, KeySchema},
		SortOrder:  schema.ColumnID,
	})
	if err != nil {
		return nil, err
	}

	configs := make([]domain.RepositoryConfig, 0, len(rows))
	for _, row := range rows {
		configs = append(configs, domain.RepositoryConfig{
			Name:      row[0],
			Namespace: row[0],
			Schema:    row[1],
		})
	}
	return configs, nil
}

// Hydrate registers every catalogued schema as a repository. Configs that
// fail validation are logged and skipped
func (c *Catalog) Hydrate(ctx context.Context) (int, error) {
	configs, err := c.All(ctx)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, config := range configs {
		if err := c.registrar.Register(config); err != nil {
			c.logger.Warn("skipping catalogued repository", "repository", config.Name, "error", err)
			continue
		}
		registered++
	}
	c.logger.Info("hydrated repositories from catalog", "count", registered)
	return registered, nil
}

// Records returns the stored schema rows ordered by name
func (c *Catalog) Records(ctx context.Context) ([]domain.SchemaRecord, error) {
	rows, err := c.rows(ctx, repository.Query{
		Projection: []string{schema.ColumnID, KeyName, KeyNamespace, KeySchema},
		SortOrder:  KeyName,
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.SchemaRecord, 0, len(rows))
	for _, row := range rows {
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog row id %q: %w", row[0], err)
		}
		records = append(records, domain.SchemaRecord{
			ID:         id,
			Name:       row[1],
			Namespace:  row[2],
			Definition: row[3],
		})
	}
	return records, nil
}

// SchemaFor returns the definition of the repository addressed by u
func (c *Catalog) SchemaFor(ctx context.Context, u *url.URL) (*schema.Definition, error) {
	if u.Host != identifier.Authority {
		u = identifier.ToInternal(u)
	}
	m, err := identifier.Parse(u)
	if err != nil {
		return nil, err
	}

	rows, err := c.rows(ctx, repository.Query{
		Projection: []string{KeySchema},
		Selection:  KeyNamespace + " = ?",
		Args:       []string{m.Repository},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		c.logger.Warn("no schema catalogued", "namespace", m.Repository, "identifier", u.String())
		return nil, vdberrors.WithMetadata(vdberrors.CodeSchemaNotFound,
			"no schema for "+m.Repository,
			map[string]string{"namespace": m.Repository})
	}

	def, err := schema.ParseString(rows[0][0])
	if err != nil {
		return nil, fmt.Errorf("stored schema for %s is unreadable: %w", m.Repository, err)
	}
	return def, nil
}

// rows runs q against the catalog and reads the result into memory
func (c *Catalog) rows(ctx context.Context, q repository.Query) ([][]string, error) {
	rs, err := c.surface.Query(ctx, URI(), q)
	if err != nil {
		return nil, vdberrors.Wrap(vdberrors.CodeCatalogUnavailable, "unable to query schema catalog", err)
	}
	if rs == nil {
		return nil, vdberrors.ErrCatalogUnavailable
	}
	defer rs.Close()

	columns := len(rs.Columns())
	out := make([][]string, 0, rs.Count())
	for rs.Next() {
		row := make([]string, columns)
		for i := range row {
			v, err := rs.Field(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read catalog row: %w", err)
			}
			row[i] = v.String
		}
		out = append(out, row)
	}
	return out, nil
}
