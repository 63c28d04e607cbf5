package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/repository"
)

func TestKeyValueFactory(t *testing.T) {
	f := repository.NewFactories()
	require.NoError(t, RegisterFactories(f))
	assert.Equal(t, []string{HandlerTypeKeyValue}, f.Types())
	assert.Error(t, RegisterFactories(f), "duplicate registration")

	h, err := f.New(HandlerTypeKeyValue)
	require.NoError(t, err)

	ctx := context.Background()
	binding, err := New(Memory)
	require.NoError(t, err)
	defer binding.Close()

	require.NoError(t, binding.Provision(ctx, "settings", h.Initializer()))
	db, err := binding.Store(ctx, "settings")
	require.NoError(t, err)
	require.NoError(t, h.Attach(ctx, repository.Host{Repository: "settings", DB: db}))

	m, err := identifier.ParseString("vdb://vdb/settings/master/entry")
	require.NoError(t, err)

	_, err = h.Insert(ctx, m, repository.Values{"key": "theme", "value": "dark"})
	require.NoError(t, err)

	_, err = h.Insert(ctx, m, repository.Values{"key": "theme", "value": "light"})
	assert.ErrorIs(t, err, vdberrors.ErrConflict)

	typ, err := h.Type(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, TypeDir+"vdb.kv.entry", typ)
}
