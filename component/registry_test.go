package component

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/errors"
)

type mockComponent struct {
	name    string
	subject string
}

func (m *mockComponent) Meta() Metadata {
	return Metadata{Name: m.name, Type: "input", Version: "1.0.0"}
}

func (m *mockComponent) OutputPorts() []Port {
	return []Port{
		{Name: "records", Index: 0, Subject: m.subject},
		{Name: "connection", Index: 1, Optional: true},
	}
}

func (m *mockComponent) ConfigSchema() ConfigSchema {
	return ConfigSchema{Properties: map[string]PropertySchema{"name": {Type: "string"}}}
}

func (m *mockComponent) Health() HealthStatus {
	return HealthStatus{Healthy: true, LastCheck: time.Now()}
}

func (m *mockComponent) DataFlow() FlowMetrics { return FlowMetrics{} }

func mockFactory(raw json.RawMessage, _ Dependencies) (Discoverable, error) {
	var cfg struct {
		Name    string `json:"name"`
		Subject string `json:"subject"`
	}
	if err := SafeUnmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &mockComponent{name: cfg.Name, subject: cfg.Subject}, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.RegisterWithConfig(RegistrationConfig{
		Name:     "mock",
		Factory:  mockFactory,
		Type:     "input",
		Protocol: "test",
		Domain:   "monitoring",
		Version:  "1.0.0",
		Schema:   ConfigSchema{Required: []string{"name"}},
	}))
	return r
}

func TestRegistry_RegisterFactory(t *testing.T) {
	r := newTestRegistry(t)

	err := r.RegisterWithConfig(RegistrationConfig{Name: "mock", Factory: mockFactory, Type: "input"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = r.RegisterWithConfig(RegistrationConfig{Name: "nofactory", Type: "input"})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	err = r.RegisterWithConfig(RegistrationConfig{Name: "notype", Factory: mockFactory})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	available := r.ListAvailable()
	require.Contains(t, available, "mock")
	assert.Equal(t, "monitoring", available["mock"].Domain)

	schema, err := r.GetComponentSchema("mock")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, schema.Required)

	_, err = r.GetComponentSchema("missing")
	assert.Error(t, err)
}

func TestRegistry_CreateComponent(t *testing.T) {
	r := newTestRegistry(t)

	comp, err := r.CreateComponent("jobs", "mock", json.RawMessage(`{"name":"jobs","subject":"streams.jobs"}`), Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "jobs", comp.Meta().Name)
	assert.Same(t, comp, r.Component("jobs"))

	_, err = r.CreateComponent("jobs", "mock", json.RawMessage(`{"name":"again"}`), Dependencies{})
	assert.Error(t, err, "duplicate instance name")

	_, err = r.CreateComponent("other", "mock", json.RawMessage(`{"subject":"streams.jobs"}`), Dependencies{})
	require.Error(t, err, "subject already owned")
	assert.Contains(t, err.Error(), "resource conflict")

	_, err = r.CreateComponent("bad name!", "mock", nil, Dependencies{})
	assert.Error(t, err)

	_, err = r.CreateComponent("x", "unknown", nil, Dependencies{})
	assert.Error(t, err)

	r.UnregisterInstance("jobs")
	assert.Nil(t, r.Component("jobs"))
	_, err = r.CreateComponent("other", "mock", json.RawMessage(`{"subject":"streams.jobs"}`), Dependencies{})
	assert.NoError(t, err, "subject released on unregister")
	assert.Equal(t, []string{"other"}, r.InstanceNames())
	assert.Len(t, r.ListComponents(), 1)
}

func TestValidateFactoryConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{"empty", ``, false},
		{"simple", `{"a":"b","n":1,"ok":true}`, false},
		{"tabs and newlines", `{"filter_document":"[{\n\t\"instanceIdPatterns\": \"i0\"}]"}`, false},
		{"control character", `{"a":"\u0001"}`, true},
		{"malformed", `{"a":`, true},
		{"too deep", strings.Repeat(`{"a":`, 12) + `1` + strings.Repeat(`}`, 12), true},
		{"long string", `{"a":"` + strings.Repeat("x", MaxStringLength+1) + `"}`, true},
		{"long filter document", `{"filter_document":"` + strings.Repeat("x", MaxStringLength+1) + `"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFactoryConfig(json.RawMessage(tt.config))
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type selfChecking struct {
	Interval string `json:"interval"`
}

func (s *selfChecking) Validate() error {
	if s.Interval == "" {
		return errors.ErrInvalidConfig
	}
	return nil
}

func TestSafeUnmarshal_RunsValidate(t *testing.T) {
	var ok selfChecking
	require.NoError(t, SafeUnmarshal(json.RawMessage(`{"interval":"1s"}`), &ok))
	assert.Equal(t, "1s", ok.Interval)

	var bad selfChecking
	assert.ErrorIs(t, SafeUnmarshal(json.RawMessage(`{}`), &bad), errors.ErrInvalidConfig)
}

func TestManagedComponent_Transition(t *testing.T) {
	mc := &ManagedComponent{Name: "jobs", Component: &mockComponent{name: "jobs"}}
	mc.Transition(StateInitialized, nil)
	assert.Equal(t, "initialized", mc.State.String())

	mc.Transition(StateStarted, errors.ErrConnect)
	assert.Equal(t, StateFailed, mc.State)
	assert.ErrorIs(t, mc.LastError, errors.ErrConnect)
	assert.False(t, IsLifecycleComponent(mc.Component))
}
