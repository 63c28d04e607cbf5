// Package hook holds change hooks that run before proxied inserts.
//
// Hooks are keyed by the external authority a request arrived on and the
// entity it addresses. A hook may fill derived fields or reject the insert.
package hook

import (
	"context"
	"fmt"
	"sync"
	"time"

	vdberrors "vdb/internal/errors"
	"vdb/internal/repository"
)

// Hook runs before an insert is forwarded. Values may be modified in place
type Hook interface {
	PreInsert(ctx context.Context, values repository.Values) error
}

// HookFunc adapts a function to Hook
type HookFunc func(ctx context.Context, values repository.Values) error

// PreInsert implements Hook
func (f HookFunc) PreInsert(ctx context.Context, values repository.Values) error {
	return f(ctx, values)
}

type key struct {
	authority string
	entity    string
}

// Registry maps (authority, entity) to a hook
type Registry struct {
	mu    sync.RWMutex
	hooks map[key]Hook
}

// NewRegistry creates an empty hook registry
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[key]Hook)}
}

// Register sets the hook for authority and entity, replacing any previous one
func (r *Registry) Register(authority, entity string, h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[key{authority, entity}] = h
}

// Lookup returns the hook for authority and entity
func (r *Registry) Lookup(authority, entity string) (Hook, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[key{authority, entity}]
	return h, ok
}

// Len returns the number of registered hooks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// Chain runs hooks in order and stops at the first error
func Chain(hooks ...Hook) Hook {
	return HookFunc(func(ctx context.Context, values repository.Values) error {
		for _, h := range hooks {
			if err := h.PreInsert(ctx, values); err != nil {
				return err
			}
		}
		return nil
	})
}

// Timestamp sets field to the current UTC time in RFC 3339 form when the
// caller left it unset
func Timestamp(field string, now func() time.Time) Hook {
	if now == nil {
		now = time.Now
	}
	return HookFunc(func(_ context.Context, values repository.Values) error {
		if v, ok := values[field]; ok && v != nil {
			return nil
		}
		values[field] = now().UTC().Format(time.RFC3339)
		return nil
	})
}

// Required rejects inserts that miss any of fields
func Required(fields ...string) Hook {
	return HookFunc(func(_ context.Context, values repository.Values) error {
		for _, f := range fields {
			if v, ok := values[f]; !ok || v == nil || v == "" {
				return vdberrors.WithMetadata(vdberrors.CodeInvalidArgument,
					fmt.Sprintf("field %s is required", f),
					map[string]string{"field": f})
			}
		}
		return nil
	})
}
