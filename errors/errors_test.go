package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFirst  = errors.New("first")  //nolint:err113
	errSecond = errors.New("second") //nolint:err113
	errBase   = errors.New("base")   //nolint:err113
)

func TestCollection_Add(t *testing.T) {
	t.Parallel()

	t.Run("adds non-nil errors", func(t *testing.T) {
		t.Parallel()

		c := &Collection{}
		c.Add(errFirst)
		c.Add(errSecond)

		assert.True(t, c.HasError())
		assert.Equal(t, 2, c.Len())
	})

	t.Run("ignores nil errors", func(t *testing.T) {
		t.Parallel()

		c := &Collection{}
		c.Add(nil)

		assert.False(t, c.HasError())
		assert.Zero(t, c.Len())
	})
}

func TestCollection_Addf(t *testing.T) {
	t.Parallel()

	c := &Collection{}
	c.Addf("%w: state %q", errFirst, "Draft")

	require.Equal(t, 1, c.Len())
	require.ErrorIs(t, c.GetError(), errFirst)
	assert.Equal(t, `first: state "Draft"`, c.GetError().Error())
}

func TestCollection_Clear(t *testing.T) {
	t.Parallel()

	c := &Collection{}
	c.Add(errFirst)
	c.Clear()

	assert.False(t, c.HasError())
	assert.NoError(t, c.GetError())
}

func TestCollection_GetError(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		c := &Collection{}
		assert.NoError(t, c.GetError())
	})

	t.Run("single error is returned as is", func(t *testing.T) {
		t.Parallel()

		c := &Collection{}
		c.Add(errFirst)

		assert.Same(t, errFirst, c.GetError()) //nolint:testifylint
	})

	t.Run("multiple errors are joined", func(t *testing.T) {
		t.Parallel()

		c := &Collection{}
		c.Add(errFirst)
		c.Add(errSecond)

		err := c.GetError()
		require.ErrorIs(t, err, errFirst)
		require.ErrorIs(t, err, errSecond)
		assert.Equal(t, "first\nsecond", err.Error())
	})
}

func TestCollection_Errors(t *testing.T) {
	t.Parallel()

	c := &Collection{}
	c.Add(errFirst)

	errs := c.Errors()
	errs[0] = errSecond

	assert.ErrorIs(t, c.GetError(), errFirst)
}

func TestCollection_GetErrorWrapped(t *testing.T) {
	t.Parallel()

	c := &Collection{}
	assert.NoError(t, c.GetErrorWrapped(errBase))

	c.Add(errFirst)
	c.Add(errSecond)

	err := c.GetErrorWrapped(errBase)
	require.ErrorIs(t, err, errBase)
	require.ErrorIs(t, err, errFirst)
	require.ErrorIs(t, err, errSecond)
}
