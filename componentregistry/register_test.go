package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/component"
	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/source"
)

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	factories := registry.ListAvailable()
	require.Contains(t, factories, source.FactoryName)
	assert.Equal(t, "input", factories[source.FactoryName].Type)
}

func TestRegister_NilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRegister_Twice(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))
	err := Register(registry)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
