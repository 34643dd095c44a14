package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/markheger/streamsx.metrics/component"
	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/pkg/tlsutil"
)

// DefaultEnvPrefix prefixes the environment variables read by a Loader.
const DefaultEnvPrefix = "STREAMSMON"

// ComponentConfig is one component instance of the host.
type ComponentConfig struct {
	// Factory names the registered factory, e.g. "jmx-source".
	Factory string          `json:"factory"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// ComponentConfigs maps instance names to their configuration. Components
// are created only when their factory is registered and enabled is true.
type ComponentConfigs map[string]ComponentConfig

// Config is the complete host configuration.
type Config struct {
	Version    string           `json:"version"`
	Platform   PlatformConfig   `json:"platform"`
	NATS       NATSConfig       `json:"nats"`
	Metrics    MetricsConfig    `json:"metrics"`
	Transport  TransportConfig  `json:"transport"`
	Components ComponentConfigs `json:"components"`
}

// PlatformConfig identifies the instance and domain the host runs in.
type PlatformConfig struct {
	InstanceID string `json:"instance_id,omitempty"`
	DomainID   string `json:"domain_id,omitempty"`
	// Standalone hosts have no instance of their own; sources then need an
	// explicit instance id or monitor every instance the filter allows.
	Standalone bool `json:"standalone"`
}

// NATSConfig defines NATS connection settings. With no URLs the host runs
// without NATS and records go to the log.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	// AppConfigBucket is the KV bucket holding application configurations.
	AppConfigBucket string `json:"app_config_bucket,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TransportConfig configures the websocket bridge transport.
type TransportConfig struct {
	HandshakeTimeout time.Duration        `json:"handshake_timeout,omitempty"`
	TLS              tlsutil.ClientConfig `json:"tls,omitempty"`
}

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Version != "" && !semverPattern.MatchString(c.Version) {
		return errors.WrapInvalid(fmt.Errorf("%w: version %q is not semantic", errors.ErrInvalidConfig, c.Version),
			"Config", "Validate", "version check")
	}
	for _, u := range c.NATS.URLs {
		if !strings.HasPrefix(u, "nats://") && !strings.HasPrefix(u, "tls://") {
			return errors.WrapInvalid(fmt.Errorf("%w: NATS URL %q", errors.ErrInvalidConfig, u),
				"Config", "Validate", "NATS URL check")
		}
	}
	if c.NATS.AppConfigBucket != "" && !isValidBucketName(c.NATS.AppConfigBucket) {
		return errors.WrapInvalid(fmt.Errorf("%w: bucket name %q", errors.ErrInvalidConfig, c.NATS.AppConfigBucket),
			"Config", "Validate", "bucket name check")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: metrics port %d", errors.ErrInvalidConfig, c.Metrics.Port),
			"Config", "Validate", "metrics port check")
	}
	if _, _, err := tlsutil.ProtocolVersions(c.Transport.TLS.Protocols); err != nil {
		return err
	}
	for name, comp := range c.Components {
		if err := component.ValidateComponentName(name); err != nil {
			return err
		}
		if comp.Factory == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: component %q has no factory", errors.ErrInvalidConfig, name),
				"Config", "Validate", "component factory check")
		}
	}
	return nil
}

// EnabledComponents returns the enabled component names in sorted order.
func (c *Config) EnabledComponents() []string {
	var names []string
	for name, comp := range c.Components {
		if comp.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// isValidBucketName checks a JetStream KV bucket name.
func isValidBucketName(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return s != ""
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(l.getDefaults())
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// getDefaults returns default configuration
func (l *Loader) getDefaults() *Config {
	return &Config{
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Transport: TransportConfig{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// loadRaw reads a JSON or YAML layer as a map.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	parseDurations(raw)
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// durationKeys are converted from strings such as "30s" to nanoseconds,
// the JSON form of time.Duration.
var durationKeys = map[string]bool{
	"reconnect_wait":     true,
	"handshake_timeout":  true,
	"reconcile_interval": true,
	"poll_interval":      true,
}

// parseDurations rewrites duration strings in place, including inside
// component configs.
func parseDurations(data map[string]any) {
	for k, v := range data {
		switch val := v.(type) {
		case string:
			if durationKeys[k] {
				if d, err := parseDurationWithDays(val); err == nil {
					data[k] = d.Nanoseconds()
				}
			}
		case map[string]any:
			parseDurations(val)
		}
	}
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(name string) (string, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return "", errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "environment check")
		}
		return val, nil
	}

	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"INSTANCE_ID", func(v string) error { cfg.Platform.InstanceID = v; return nil }},
		{"DOMAIN_ID", func(v string) error { cfg.Platform.DomainID = v; return nil }},
		{"STANDALONE", func(v string) error {
			b, err := strconv.ParseBool(v)
			cfg.Platform.Standalone = b
			return err
		}},
		{"NATS_URLS", func(v string) error { cfg.NATS.URLs = splitList(v); return nil }},
		{"NATS_USERNAME", func(v string) error { cfg.NATS.Username = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.NATS.Password = v; return nil }},
		{"NATS_TOKEN", func(v string) error { cfg.NATS.Token = v; return nil }},
		{"APP_CONFIG_BUCKET", func(v string) error { cfg.NATS.AppConfigBucket = v; return nil }},
		{"METRICS_PORT", func(v string) error {
			p, err := strconv.Atoi(v)
			cfg.Metrics.Port = p
			return err
		}},
	}
	for _, o := range overrides {
		val, err := get(o.name)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%s_%s: %w", l.envPrefix, o.name, err),
				"Loader", "applyEnvOverrides", "parse override")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String returns a JSON representation of the config with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "****"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "****"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
