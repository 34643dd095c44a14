package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestMissingParameter(t *testing.T) {
	err := MissingParameter("connectionURL")

	assert.ErrorIs(t, err, ErrMissingConfig)
	assert.Equal(t,
		"must be specified as parameter or in the application configuration: connectionURL",
		err.Error())
	assert.True(t, IsFatal(err))
}

func TestMissingEnvironment(t *testing.T) {
	err := MissingEnvironment("STREAMS_INSTALL")
	assert.ErrorIs(t, err, ErrEnvironment)
	assert.Contains(t, err.Error(), "STREAMS_INSTALL")
}

func TestIsFatal_StartupKinds(t *testing.T) {
	for _, sentinel := range []error{
		ErrMissingConfig, ErrEnvironment, ErrFilterParse,
		ErrFilterMismatch, ErrDiscovery, ErrInvalidConfig,
	} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			assert.True(t, IsFatal(sentinel))
			assert.True(t, IsFatal(Wrap(sentinel, "Source", "Initialize", "resolve")))
			assert.Equal(t, ErrorFatal, Classify(sentinel))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection lost", ErrConnectionLost, true},
		{"no connection", ErrNoConnection, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"timeout in message", fmt.Errorf("read timeout on socket"), true},
		{"filter parse", ErrFilterParse, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: errors.New("x")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: errors.New("x")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestConnectClassDependsOnWrapper(t *testing.T) {
	startup := WrapFatal(ErrConnect, "connection.Manager", "Connect", "connect")
	runtime := WrapTransient(ErrConnect, "connection.Manager", "Reconnect", "reconnect")

	assert.ErrorIs(t, startup, ErrConnect)
	assert.ErrorIs(t, runtime, ErrConnect)
	assert.True(t, IsFatal(startup))
	assert.False(t, IsTransient(startup))
	assert.True(t, IsTransient(runtime))
	assert.False(t, IsFatal(runtime))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))

	err := Wrap(ErrDiscovery, "connection.StreamtoolDiscoverer", "URL", "getjmxconnect")
	assert.Equal(t, "connection.StreamtoolDiscoverer.URL: getjmxconnect failed: connection discovery failed", err.Error())
	assert.ErrorIs(t, err, ErrDiscovery)
}

func TestWrapInvalid(t *testing.T) {
	err := WrapInvalid(ErrInvalidData, "emitter", "Emit", "encode record")

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "emitter", ce.Component)
	assert.Equal(t, "Emit", ce.Operation)
	assert.True(t, IsInvalid(err))
	assert.Equal(t, ErrorInvalid, Classify(err))
}

func TestClassify_UnknownDefaultsTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}
