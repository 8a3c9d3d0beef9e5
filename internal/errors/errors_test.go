package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	t.Parallel()

	err := Newf("something failed").Build()
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Equal(t, "something failed", err.Error())
}

func TestBuilderCategoryAndContext(t *testing.T) {
	t.Parallel()

	err := Newf("write failed: %s", "disk full").
		Category(CategoryObjectStore).
		Component("store").
		Context("path", "feedback/Monstera_deliciosa").
		Build()

	assert.Equal(t, CategoryObjectStore, err.Category)
	assert.Equal(t, "store", err.Component)

	ctx := err.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "feedback/Monstera_deliciosa", ctx["path"])

	// The copy must not alias the internal map.
	ctx["path"] = "mutated"
	assert.Equal(t, "feedback/Monstera_deliciosa", err.GetContext()["path"])
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	base := Newf("missing mapping").Category(CategoryConfiguration).Build()
	wrapped := Newf("resolve label: %w", base).Build()

	assert.True(t, IsCategory(base, CategoryConfiguration))
	assert.False(t, IsCategory(base, CategoryNetwork))
	// As unwraps through the chain, so category checks survive wrapping.
	assert.True(t, As(wrapped, new(*EnhancedError)))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	err := Newf("taxon not found").Category(CategoryNotFound).Build()
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(NewStd("plain")))
}
