package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	HealthInterval  time.Duration
	Demo            bool
	DemoInterval    time.Duration
	DemoBridge      string
	ShowVersion     bool
	Validate        bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)

	// Flags fall back to environment variables
	fs.StringSliceVarP(&cfg.ConfigPaths, "config", "c",
		splitEnvList("STREAMSMON_CONFIG"),
		"Configuration file layers, later ones override earlier ones (env: STREAMSMON_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("STREAMSMON_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: STREAMSMON_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("STREAMSMON_LOG_FORMAT", "json"),
		"Log format: json, text (env: STREAMSMON_LOG_FORMAT)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("STREAMSMON_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: STREAMSMON_SHUTDOWN_TIMEOUT)")
	fs.DurationVar(&cfg.HealthInterval, "health-interval",
		getEnvDuration("STREAMSMON_HEALTH_INTERVAL", 10*time.Second),
		"Interval between component health checks (env: STREAMSMON_HEALTH_INTERVAL)")
	fs.BoolVar(&cfg.Demo, "demo",
		getEnvBool("STREAMSMON_DEMO", false),
		"Serve an in-memory demo instance on service:jmx:demo://local (env: STREAMSMON_DEMO)")
	fs.DurationVar(&cfg.DemoInterval, "demo-interval", 5*time.Second,
		"Interval between simulated changes of the demo instance")
	fs.StringVar(&cfg.DemoBridge, "demo-bridge", "",
		"Also serve the demo instance over the websocket bridge on this address, e.g. 127.0.0.1:9443")
	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	if len(cfg.ConfigPaths) == 0 {
		return fmt.Errorf("at least one --config file is required")
	}
	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	if cfg.HealthInterval <= 0 {
		return fmt.Errorf("invalid health interval: %s", cfg.HealthInterval)
	}
	return nil
}

func printDetailedHelp(fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - streaming instance monitoring source

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Environment:
  STREAMS_INSTALL must point to the runtime installation.

Examples:
  # Run with a base and an override layer
  %s -c configs/base.yaml -c configs/production.json

  # Run against the built-in demo instance
  %s -c configs/demo.yaml --demo --log-format=text

  # Validate configuration only
  %s -c configs/base.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
