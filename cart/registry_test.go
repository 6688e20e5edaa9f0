package cart

import (
	"testing"

	"github.com/statecart/statecart/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	store := statestore.NewMemory()
	reg := NewRegistry(store, WithLogger(nil))
	ctx := t.Context()

	_, err := reg.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrCartNotFound)

	opened, err := reg.Open(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", opened.ID())

	again, err := reg.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Same(t, opened, again)

	created, err := reg.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "c-1", created.ID())

	states, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c-1": "Draft", created.ID(): "Draft"}, states)
	assert.Equal(t, 2, reg.Len())
	assert.Same(t, store, reg.Store())
}

func TestRegistryDefaultsToMemory(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, WithLogger(nil))

	c, err := reg.Open(t.Context(), "x")
	require.NoError(t, err)
	require.NoError(t, c.SaveCart(t.Context()))

	states, err := reg.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Saved", states["x"])
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, WithLogger(nil))

	_, err := reg.Open(t.Context(), "")
	require.ErrorIs(t, err, statestore.ErrEmptyID)

	_, err = reg.Get(t.Context(), "")
	require.ErrorIs(t, err, statestore.ErrEmptyID)

	assert.Zero(t, reg.Len())

	states, err := reg.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, states)
}
