package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/markheger/streamsx.metrics/appconfig"
	"github.com/markheger/streamsx.metrics/component"
	"github.com/markheger/streamsx.metrics/connection"
	"github.com/markheger/streamsx.metrics/emitter"
	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/filter"
	"github.com/markheger/streamsx.metrics/handler"
	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/metric"
	"github.com/markheger/streamsx.metrics/pkg/retry"
)

// EnvStreamsInstall names the installation directory of the streaming
// runtime. It locates streamtool for endpoint discovery.
const EnvStreamsInstall = "STREAMS_INSTALL"

// clientLibraries are the runtime files a management client depends on,
// relative to the installation directory.
var clientLibraries = []string{
	"lib/com.ibm.streams.management.jmxmp.jar",
	"lib/com.ibm.streams.management.mx.jar",
	"ext/lib/jmxremote_optional.jar",
	"ext/lib/JSON4J.jar",
}

// Option customizes a Source.
type Option func(*Source)

// WithSinks replaces the NATS sinks of port 0 and port 1. A nil notices
// sink leaves port 1 unconnected.
func WithSinks(records, notices emitter.Sink) Option {
	return func(s *Source) {
		s.recordSink = records
		s.noticeSink = notices
	}
}

// WithDiscoverer replaces the streamtool based endpoint discovery.
func WithDiscoverer(d connection.Discoverer) Option {
	return func(s *Source) { s.discoverer = d }
}

// WithRetry replaces the reconnect backoff.
func WithRetry(cfg retry.Config) Option {
	return func(s *Source) { s.retry = cfg }
}

// Source is a monitoring source component.
type Source struct {
	name   string
	role   Role
	spec   roleSpec
	config Config
	deps   component.Dependencies
	logger *slog.Logger
	clock  clock.Clock

	recordSink  emitter.Sink
	noticeSink  emitter.Sink
	discoverer  connection.Discoverer
	retry       retry.Config
	core        *metric.Metrics
	connMetrics *connection.Metrics
	records     *emitter.Emitter
	notices     *emitter.Emitter

	resolver *appconfig.Resolver
	resolved appconfig.Resolved
	manager  *connection.Manager

	mu         sync.Mutex
	state      component.State
	filter     *filter.Filter
	tree       *handler.Tree
	treeConnID string
	lastErr    error
	errorCount int
	startTime  time.Time

	running atomic.Bool
	broken  chan brokenSignal
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSource creates a source named name. It performs no I/O.
func NewSource(name string, cfg Config, deps component.Dependencies, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	role, _ := ParseRole(cfg.Role)
	if deps.Connector == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: management connector is required", errors.ErrInvalidConfig),
			"Source", "NewSource", "dependency validation")
	}

	s := &Source{
		name:   name,
		role:   role,
		spec:   roles[role],
		config: cfg.withDefaults(),
		deps:   deps,
		logger: deps.GetLoggerWithComponent(name).With("role", roles[role].name),
		clock:  deps.GetClock(),
		retry:  retry.Persistent(),
		core:   deps.MetricsRegistry.CoreMetrics(),
		broken: make(chan brokenSignal, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.recordSink == nil {
		switch {
		case deps.NATSClient != nil && cfg.Subject != "":
			s.recordSink = emitter.NewNATSSink(deps.NATSClient, cfg.Subject, name)
		default:
			s.logger.Warn("No NATS subject for records, logging them instead")
			s.recordSink = emitter.NewLogSink(s.logger, slog.LevelInfo)
		}
	}
	if s.noticeSink == nil && deps.NATSClient != nil && cfg.ConnectionSubject != "" {
		s.noticeSink = emitter.NewNATSSink(deps.NATSClient, cfg.ConnectionSubject, name)
	}
	if s.retry.Clock == nil {
		s.retry.Clock = s.clock
	}

	connMetrics, err := connection.NewMetrics(name, deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Source", "NewSource", "metric registration")
	}
	s.connMetrics = connMetrics
	s.records = emitter.New(name, s.recordSink, s.clock, s.core, s.logger)
	s.notices = emitter.New(name, s.noticeSink, s.clock, s.core, s.logger)
	s.setState(component.StateCreated)
	return s, nil
}

// Role returns the source's role.
func (s *Source) Role() Role { return s.role }

// Initialize checks the environment, resolves the configuration, and
// compiles the filter. Every error it returns is fatal.
func (s *Source) Initialize() error {
	install := os.Getenv(EnvStreamsInstall)
	if install == "" {
		err := errors.WrapFatal(errors.MissingEnvironment(EnvStreamsInstall), "Source", "Initialize", "environment check")
		s.fail(err)
		return err
	}
	libs := make([]string, len(clientLibraries))
	for i, l := range clientLibraries {
		libs[i] = filepath.Join(install, l)
	}
	s.logger.Info("Management client libraries", "install", install, "libraries", libs)

	ctx := context.Background()
	s.resolver = appconfig.NewResolver(s.config.Params, s.deps.Host, s.deps.AppConfig, s.logger)
	resolved, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.fail(err)
		return err
	}
	s.resolved = resolved
	s.logger.Info("Configuration resolved", "config", resolved)

	f, err := s.compileFilter(resolved)
	if err != nil {
		s.fail(err)
		return err
	}

	if s.discoverer == nil {
		s.discoverer = connection.NewStreamtoolDiscoverer(install, connection.ExecRunner, s.logger)
	}
	s.manager = connection.NewManager(connection.Config{
		URL:           resolved.ConnectionURL,
		User:          resolved.User,
		Password:      resolved.Password,
		SSLOption:     resolved.SSLOption,
		DomainID:      resolved.DomainID,
		LocalInstance: resolved.LocalInstance,
		Discoverer:    s.discoverer,
		Retry:         s.retry,
	}, s.deps.Connector, s.connMetrics, s.logger)
	s.manager.OnBroken(s.onBroken)
	s.manager.OnNotification(s.onConnectionNotification)

	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.setState(component.StateInitialized)
	return nil
}

// compileFilter compiles the resolved filter and narrows it to the role.
func (s *Source) compileFilter(resolved appconfig.Resolved) (*filter.Filter, error) {
	f, err := s.resolver.CompileFilter(resolved, s.config.FilterBaseDir)
	if err != nil {
		return nil, err
	}
	return s.narrow(f)
}

// narrow applies the role's view. Every role rejects a filter that does not
// select the monitored instance.
func (s *Source) narrow(f *filter.Filter) (*filter.Filter, error) {
	f = s.spec.view(f)
	if err := f.Validate(s.resolved.InstanceID); err != nil {
		return nil, err
	}
	return f, nil
}

// Start connects to the management endpoint, builds the handler tree, and
// starts the reconcile and poll loop. A failed connect is fatal.
func (s *Source) Start(ctx context.Context) error {
	if s.manager == nil {
		return errors.WrapFatal(errors.ErrNotStarted, "Source", "Start", "initialization check")
	}
	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Source", "Start", "state check")
	}
	s.drainBroken()

	conn, err := s.manager.Connect(ctx)
	if err != nil {
		s.running.Store(false)
		err = errors.WrapFatal(err, "Source", "Start", "connect")
		s.fail(err)
		return err
	}
	if err := s.buildTree(ctx, conn); err != nil {
		s.running.Store(false)
		if cerr := s.manager.Close(); cerr != nil {
			s.logger.Debug("Close after failed start", "error", cerr)
		}
		s.drainBroken()
		err = errors.WrapFatal(err, "Source", "Start", "build handler tree")
		s.fail(err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.startTime = s.clock.Now()
	s.mu.Unlock()

	tickers := s.newTickers()
	s.wg.Add(1)
	go s.run(runCtx, tickers)

	s.setState(component.StateStarted)
	s.logger.Info("Source started", "instance", s.resolved.InstanceID, "url", s.manager.URL())
	return nil
}

// Stop closes the handler tree and the connection. Closing the connection
// this way does not count as a broken connection.
func (s *Source) Stop(timeout time.Duration) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.setSourceState(metric.StateStopping)

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	var stopErr error
	select {
	case <-done:
	case <-time.After(timeout):
		stopErr = errors.WrapTransient(errors.ErrConnectionTimeout, "Source", "Stop", "wait for loop")
		s.logger.Warn("Source loop did not stop in time", "timeout", timeout)
	}

	s.closeTree()
	if err := s.manager.Close(); err != nil {
		s.logger.Warn("Connection close failed", "error", err)
	}
	s.connMetrics.Unregister(s.deps.MetricsRegistry)
	s.setState(component.StateStopped)
	s.logger.Info("Source stopped")
	return stopErr
}

// buildTree replaces the handler tree with one built on conn. The scan runs
// outside s.mu; the new tree is swapped in afterwards.
func (s *Source) buildTree(ctx context.Context, conn jmx.Connection) error {
	s.mu.Lock()
	old := s.tree
	s.tree = nil
	s.treeConnID = conn.ID()
	f := s.filter
	s.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("Handler tree closed with errors", "error", err)
		}
	}

	opts := handler.Options{
		Conn:       conn,
		Filter:     f,
		InstanceID: s.resolved.InstanceID,
		Emitter:    s.records,
		OnConnectionError: func(err error) {
			s.manager.ReportFailure(err)
		},
		Source:  s.name,
		Metrics: s.core,
		Logger:  s.logger,
	}
	s.spec.attach(&opts)
	tree, err := handler.Build(ctx, opts)
	if err != nil {
		if jmx.IsConnectionError(err) {
			s.manager.ReportFailure(err)
		}
		return err
	}

	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		if cerr := tree.Close(); cerr != nil {
			s.logger.Warn("Handler tree closed with errors", "error", cerr)
		}
		return errors.WrapInvalid(errors.ErrNotStarted, "Source", "buildTree", "install tree")
	}
	replaced := s.tree
	s.tree = tree
	s.mu.Unlock()
	if replaced != nil {
		if cerr := replaced.Close(); cerr != nil {
			s.logger.Warn("Handler tree closed with errors", "error", cerr)
		}
	}
	return nil
}

func (s *Source) closeTree() {
	s.mu.Lock()
	tree := s.tree
	s.tree = nil
	s.mu.Unlock()
	if tree == nil {
		return
	}
	if err := tree.Close(); err != nil {
		s.logger.Warn("Handler tree closed with errors", "error", err)
	}
}

func (s *Source) currentTree() *handler.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Connection returns the connection manager. It is nil before Initialize.
func (s *Source) Connection() *connection.Manager { return s.manager }

// Resolved returns the effective configuration. It is set by Initialize.
func (s *Source) Resolved() appconfig.Resolved { return s.resolved }

func (s *Source) setState(state component.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	switch state {
	case component.StateStarted:
		s.setSourceState(metric.StateRunning)
	case component.StateStopped:
		s.setSourceState(metric.StateStopped)
	case component.StateFailed:
		s.setSourceState(metric.StateFailed)
	case component.StateInitialized:
		s.setSourceState(metric.StateStarting)
	}
}

func (s *Source) setSourceState(v int) {
	if s.core != nil {
		s.core.SourceState.WithLabelValues(s.name).Set(float64(v))
	}
}

// State returns the lifecycle state.
func (s *Source) State() component.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// fail records err and moves to the failed state.
func (s *Source) fail(err error) {
	s.recordError(err)
	s.setState(component.StateFailed)
	s.logger.Error("Source failed", "error", err)
}

func (s *Source) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.errorCount++
}

func (s *Source) clearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}
