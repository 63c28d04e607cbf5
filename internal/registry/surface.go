package registry

import (
	"context"
	"net/url"

	"vdb/internal/repository"
)

var _ repository.Surface = (*Registry)(nil)

// Query resolves u and forwards the query to its handler
func (r *Registry) Query(ctx context.Context, u *url.URL, q repository.Query) (repository.ResultSet, error) {
	m, h, err := r.resolve(ctx, u)
	if err != nil {
		return nil, err
	}
	return h.Query(ctx, m, q)
}

// Insert resolves u and forwards the insert to its handler
func (r *Registry) Insert(ctx context.Context, u *url.URL, values repository.Values) (*url.URL, error) {
	m, h, err := r.resolve(ctx, u)
	if err != nil {
		return nil, err
	}
	return h.Insert(ctx, m, values)
}

// Update resolves u and forwards the update to its handler
func (r *Registry) Update(ctx context.Context, u *url.URL, values repository.Values, selection string, args []string) (int64, error) {
	m, h, err := r.resolve(ctx, u)
	if err != nil {
		return 0, err
	}
	return h.Update(ctx, m, values, selection, args)
}

// Delete resolves u and forwards the delete to its handler
func (r *Registry) Delete(ctx context.Context, u *url.URL, selection string, args []string) (int64, error) {
	m, h, err := r.resolve(ctx, u)
	if err != nil {
		return 0, err
	}
	return h.Delete(ctx, m, selection, args)
}

// Type is ResolveType
func (r *Registry) Type(ctx context.Context, u *url.URL) (string, error) {
	return r.ResolveType(ctx, u)
}
