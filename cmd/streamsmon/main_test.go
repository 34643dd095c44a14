package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/source"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamsmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
		assert.False(t, cfg.Demo)
	})

	t.Run("layers and demo", func(t *testing.T) {
		cfg, err := parseFlags([]string{"-c", "a.yaml", "--config", "b.json", "--demo", "--demo-bridge", "127.0.0.1:0"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.yaml", "b.json"}, cfg.ConfigPaths)
		assert.True(t, cfg.Demo)
		assert.Equal(t, "127.0.0.1:0", cfg.DemoBridge)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("STREAMSMON_CONFIG", "base.yaml, prod.json")
		t.Setenv("STREAMSMON_LOG_LEVEL", "debug")
		t.Setenv("STREAMSMON_DEMO", "true")
		cfg, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"base.yaml", "prod.json"}, cfg.ConfigPaths)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.True(t, cfg.Demo)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := parseFlags([]string{"--nope"})
		assert.Error(t, err)
	})
}

func TestValidateFlags(t *testing.T) {
	path := writeConfig(t, "version: 1.0.0\n")
	valid := func() *CLIConfig {
		return &CLIConfig{
			ConfigPaths:     []string{path},
			LogLevel:        "info",
			LogFormat:       "text",
			ShutdownTimeout: time.Second,
			HealthInterval:  time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*CLIConfig) {}},
		{name: "no config", mutate: func(c *CLIConfig) { c.ConfigPaths = nil }, wantErr: "at least one --config"},
		{name: "missing file", mutate: func(c *CLIConfig) { c.ConfigPaths = []string{"/nonexistent.yaml"} }, wantErr: "not found"},
		{name: "log level", mutate: func(c *CLIConfig) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "log format", mutate: func(c *CLIConfig) { c.LogFormat = "xml" }, wantErr: "invalid log format"},
		{name: "shutdown timeout", mutate: func(c *CLIConfig) { c.ShutdownTimeout = 0 }, wantErr: "shutdown timeout"},
		{name: "version skips checks", mutate: func(c *CLIConfig) { c.ShowVersion = true; c.ConfigPaths = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateFlags(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, Version, entry["version"])
	assert.Equal(t, "value", entry["key"])
}

func TestWithInstanceName(t *testing.T) {
	raw, err := withInstanceName(json.RawMessage(`{"role":"log"}`), "logs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"log","name":"logs"}`, string(raw))

	raw, err = withInstanceName(json.RawMessage(`{"name":"custom"}`), "logs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"custom"}`, string(raw))

	raw, err = withInstanceName(nil, "logs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"logs"}`, string(raw))

	_, err = withInstanceName(json.RawMessage(`[1]`), "logs")
	assert.Error(t, err)
}

func TestDemoInstance(t *testing.T) {
	connector := jmx.NewConnector()
	d := newDemoInstance("", time.Hour, connector, newLogger(&bytes.Buffer{}, "error", "json"))
	assert.Equal(t, "demo", d.server.InstanceID())

	ctx := context.Background()
	conn, err := connector.Dial(ctx, demoURL, jmx.Environment{})
	require.NoError(t, err)
	defer conn.Close()

	jobs := func() []jmx.ObjectName {
		names, err := conn.QueryNames(ctx, jmx.ChildPattern(jmx.InstanceName("demo"), jmx.TypeJob))
		require.NoError(t, err)
		return names
	}
	assert.Len(t, jobs(), 1)

	d.step()
	assert.Len(t, jobs(), 2)
	d.step()
	d.step()
	assert.Len(t, jobs(), 2)
	d.step()
	assert.Len(t, jobs(), 1)

	v, err := conn.GetAttribute(ctx, jmx.PEName("demo", "1", "1"), jmx.MetricsAttribute)
	require.NoError(t, err)
	metrics, err := jmx.DecodeMetrics(v)
	require.NoError(t, err)
	assert.Contains(t, metrics, jmx.Metric{Name: "nTuplesProcessed", Kind: jmx.MetricCounter, Value: 400})
}

func TestHost_DemoLifecycle(t *testing.T) {
	t.Setenv(source.EnvStreamsInstall, t.TempDir())
	path := writeConfig(t, `
version: 1.0.0
platform:
  instance_id: demo
  domain_id: d1
  standalone: true
metrics:
  enabled: false
components:
  jobs:
    factory: jmx-source
    enabled: true
    config:
      role: JobStatusSource
      connection_url: service:jmx:demo://local
      user: admin
      password: secret
      instance_id: demo
      reconcile_interval: 1h
  disabled:
    factory: jmx-source
    enabled: false
    config:
      role: log
`)
	cfg, err := loadConfig([]string{path})
	require.NoError(t, err)

	out := &syncBuffer{}
	cli := &CLIConfig{Demo: true, DemoInterval: time.Hour, HealthInterval: 10 * time.Millisecond}
	h := newHost(cfg, cli, newLogger(out, "info", "json"))

	require.NoError(t, h.start(context.Background()))
	require.Len(t, h.components, 1)
	assert.Equal(t, "jobs", h.components[0].name)
	assert.Equal(t, []string{"jobs"}, h.registry.InstanceNames())

	assert.Eventually(t, func() bool {
		status, ok := h.monitor.Get("jobs")
		return ok && status.IsHealthy()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("demo::Pipeline"))
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.shutdown(time.Second))
	assert.Empty(t, h.registry.InstanceNames())
	assert.Equal(t, 0, h.demo.server.Connections())
}

func TestRun_ValidateOnly(t *testing.T) {
	path := writeConfig(t, `
version: 1.0.0
components:
  jobs:
    factory: jmx-source
    enabled: true
    config:
      role: job_status
`)
	assert.NoError(t, run([]string{"-c", path, "--validate", "--log-format", "text"}))

	bad := writeConfig(t, "version: not-semver\n")
	assert.Error(t, run([]string{"-c", bad, "--validate"}))
}
