// Package main implements streamsmon, the host of the monitoring sources.
// It loads the host configuration, connects to NATS, serves Prometheus
// metrics, and runs every enabled component until it receives SIGINT or
// SIGTERM.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/markheger/streamsx.metrics/appconfig"
	"github.com/markheger/streamsx.metrics/component"
	"github.com/markheger/streamsx.metrics/componentregistry"
	"github.com/markheger/streamsx.metrics/config"
	"github.com/markheger/streamsx.metrics/health"
	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/jmx/wsbridge"
	"github.com/markheger/streamsx.metrics/metric"
	"github.com/markheger/streamsx.metrics/natsclient"
	"github.com/markheger/streamsx.metrics/pkg/tlsutil"
	"github.com/markheger/streamsx.metrics/source"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "streamsmon"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if stderrors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("Starting streamsmon",
		"version", Version,
		"build_time", BuildTime,
		"config_paths", cliCfg.ConfigPaths)

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid", "components", cfg.EnabledComponents())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHost(cfg, cliCfg, logger)
	if err := h.start(ctx); err != nil {
		h.shutdown(cliCfg.ShutdownTimeout)
		return err
	}
	slog.Info("streamsmon started", "components", len(h.components))

	<-ctx.Done()
	slog.Info("Received shutdown signal")
	if err := h.shutdown(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("streamsmon shutdown complete")
	return nil
}

// loadConfig loads and validates the configuration layers.
func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

type hostedComponent struct {
	name      string
	comp      component.Discoverable
	lifecycle component.LifecycleComponent
}

// host owns the shared infrastructure and the running components.
type host struct {
	cfg    *config.Config
	cli    *CLIConfig
	logger *slog.Logger

	natsClient    *natsclient.Client
	metrics       *metric.MetricsRegistry
	metricsServer *metric.Server
	monitor       *health.Monitor
	registry      *component.Registry
	connector     *jmx.Connector
	demo          *demoInstance
	components    []hostedComponent

	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

func newHost(cfg *config.Config, cli *CLIConfig, logger *slog.Logger) *host {
	return &host{
		cfg:       cfg,
		cli:       cli,
		logger:    logger,
		metrics:   metric.NewMetricsRegistry(),
		monitor:   health.NewMonitor(),
		registry:  component.NewRegistry(),
		connector: jmx.NewConnector(),
	}
}

func (h *host) start(ctx context.Context) error {
	if err := componentregistry.Register(h.registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	slog.Info("Component factories registered", "factories", h.registry.ListAvailable())

	if err := h.setupTransport(); err != nil {
		return err
	}
	if h.cli.Demo {
		if err := h.setupDemo(ctx); err != nil {
			return err
		}
	}
	if err := h.connectNATS(ctx); err != nil {
		return err
	}
	store, err := h.appConfigStore(ctx)
	if err != nil {
		return err
	}
	if err := h.startMetricsServer(); err != nil {
		return err
	}

	deps := component.Dependencies{
		NATSClient:      h.natsClient,
		MetricsRegistry: h.metrics,
		Logger:          h.logger,
		Connector:       h.connector,
		AppConfig:       store,
		Host: appconfig.HostInfo{
			InstanceID: h.cfg.Platform.InstanceID,
			DomainID:   h.cfg.Platform.DomainID,
			Standalone: h.cfg.Platform.Standalone,
		},
	}
	if err := h.startComponents(ctx, deps); err != nil {
		return err
	}
	h.startHealthLoop(ctx)
	return nil
}

// setupTransport registers the websocket bridge dialer.
func (h *host) setupTransport() error {
	dialer := &wsbridge.Dialer{
		HandshakeTimeout: h.cfg.Transport.HandshakeTimeout,
		Logger:           h.logger,
	}
	tlsCfg := h.cfg.Transport.TLS
	if len(tlsCfg.CAFiles) > 0 || tlsCfg.InsecureSkipVerify || tlsCfg.CertFile != "" ||
		len(tlsCfg.Protocols) > 0 || tlsCfg.ServerName != "" {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(tlsCfg)
		if err != nil {
			return fmt.Errorf("transport TLS: %w", err)
		}
		dialer.TLSConfig = tlsConfig
	}
	wsbridge.Register(h.connector, dialer)
	return nil
}

func (h *host) setupDemo(ctx context.Context) error {
	if os.Getenv(source.EnvStreamsInstall) == "" {
		slog.Warn("Demo mode without "+source.EnvStreamsInstall+"; using a placeholder", "value", os.TempDir())
		if err := os.Setenv(source.EnvStreamsInstall, os.TempDir()); err != nil {
			return err
		}
	}
	h.demo = newDemoInstance(h.cfg.Platform.InstanceID, h.cli.DemoInterval, h.connector, h.logger)
	if h.cli.DemoBridge != "" {
		if err := h.demo.serveBridge(h.cli.DemoBridge); err != nil {
			return fmt.Errorf("demo bridge: %w", err)
		}
	}
	h.demo.start(ctx)
	slog.Info("Demo instance running", "url", demoURL, "instance", h.demo.server.InstanceID())
	return nil
}

// connectNATS connects when NATS URLs are configured.
func (h *host) connectNATS(ctx context.Context) error {
	if len(h.cfg.NATS.URLs) == 0 {
		slog.Warn("No NATS URLs configured; records are written to the log")
		return nil
	}
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(h.logger.With("component", "natsclient")),
		natsclient.WithMaxReconnects(h.cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(h.cfg.NATS.ReconnectWait),
		natsclient.WithName(appName),
	}
	if h.cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(h.cfg.NATS.Username, h.cfg.NATS.Password))
	}
	if h.cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(h.cfg.NATS.Token))
	}
	client, err := natsclient.NewClient(strings.Join(h.cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "urls", h.cfg.NATS.URLs)
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	h.natsClient = client
	return nil
}

// appConfigStore returns the KV-backed store when a bucket is configured and
// an empty in-memory store otherwise.
func (h *host) appConfigStore(ctx context.Context) (appconfig.Store, error) {
	bucketName := h.cfg.NATS.AppConfigBucket
	if bucketName == "" || h.natsClient == nil {
		return appconfig.NewMapStore(nil), nil
	}
	bucket, err := h.natsClient.KeyValueBucket(ctx, bucketName, true)
	if err != nil {
		return nil, fmt.Errorf("open application configuration bucket %s: %w", bucketName, err)
	}
	slog.Info("Application configurations from NATS KV", "bucket", bucketName)
	return appconfig.NewKVStore(h.natsClient.NewKVStore(bucket)), nil
}

func (h *host) startMetricsServer() error {
	if !h.cfg.Metrics.Enabled {
		return nil
	}
	h.metricsServer = metric.NewServer(fmt.Sprintf(":%d", h.cfg.Metrics.Port), h.cfg.Metrics.Path, h.metrics,
		func() (bool, any) {
			status := h.monitor.AggregateHealth(appName)
			return !status.IsUnhealthy(), status
		})
	if err := h.metricsServer.Start(); err != nil {
		return err
	}
	slog.Info("Metrics server listening", "address", h.metricsServer.Address())
	return nil
}

func (h *host) startComponents(ctx context.Context, deps component.Dependencies) error {
	for _, name := range h.cfg.EnabledComponents() {
		cc := h.cfg.Components[name]
		raw, err := withInstanceName(cc.Config, name)
		if err != nil {
			return fmt.Errorf("component %s: %w", name, err)
		}
		comp, err := h.registry.CreateComponent(name, cc.Factory, raw, deps)
		if err != nil {
			return fmt.Errorf("create component %s: %w", name, err)
		}
		hc := hostedComponent{name: name, comp: comp}
		if lc, ok := component.AsLifecycleComponent(comp); ok {
			if err := lc.Initialize(); err != nil {
				h.registry.UnregisterInstance(name)
				return fmt.Errorf("initialize component %s: %w", name, err)
			}
			if err := lc.Start(ctx); err != nil {
				h.registry.UnregisterInstance(name)
				return fmt.Errorf("start component %s: %w", name, err)
			}
			hc.lifecycle = lc
		}
		h.components = append(h.components, hc)
		h.monitor.Update(name, health.FromComponentHealth(name, comp.Health()))
		slog.Info("Component started", "name", name, "factory", cc.Factory)
	}
	return nil
}

// withInstanceName sets the config's name to the instance name unless the
// config names itself.
func withInstanceName(raw json.RawMessage, name string) (json.RawMessage, error) {
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if _, ok := m["name"]; !ok {
		m["name"] = name
	}
	return json.Marshal(m)
}

func (h *host) startHealthLoop(ctx context.Context) {
	ctx, h.healthCancel = context.WithCancel(ctx)
	h.healthDone = make(chan struct{})
	go func() {
		defer close(h.healthDone)
		ticker := time.NewTicker(h.cli.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.updateHealth()
			}
		}
	}()
}

func (h *host) updateHealth() {
	for _, hc := range h.components {
		status := health.FromComponentHealth(hc.name, hc.comp.Health())
		previous, known := h.monitor.Get(hc.name)
		h.monitor.Update(hc.name, status)
		if known && previous.Status != status.Status {
			slog.Info("Component health changed", "name", hc.name, "from", previous.Status, "to", status.Status)
		}
	}
}

// shutdown stops components in reverse start order, then the infrastructure.
func (h *host) shutdown(timeout time.Duration) error {
	var err error
	if h.healthCancel != nil {
		h.healthCancel()
		<-h.healthDone
	}
	for i := len(h.components) - 1; i >= 0; i-- {
		hc := h.components[i]
		if hc.lifecycle != nil {
			if stopErr := hc.lifecycle.Stop(timeout); stopErr != nil {
				slog.Error("Error stopping component", "name", hc.name, "error", stopErr)
				err = multierr.Append(err, fmt.Errorf("stop %s: %w", hc.name, stopErr))
			}
		}
		h.registry.UnregisterInstance(hc.name)
	}
	h.components = nil

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if h.demo != nil {
		h.demo.stop(ctx)
	}
	if h.metricsServer != nil {
		err = multierr.Append(err, h.metricsServer.Stop(ctx))
	}
	if h.natsClient != nil {
		err = multierr.Append(err, h.natsClient.Close(ctx))
	}
	return err
}
