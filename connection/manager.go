package connection

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/pkg/retry"
)

// State is the lifecycle state of the managed session.
type State int

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Config describes the endpoint and credentials of a session.
type Config struct {
	// URL is a comma-separated service URL list. Empty means discover.
	URL       string
	User      string
	Password  string
	SSLOption string
	// DomainID and LocalInstance gate discovery: it only runs for the
	// instance the source itself runs in.
	DomainID      string
	LocalInstance bool
	Discoverer    Discoverer
	// Retry governs Reconnect.
	Retry retry.Config
}

// Manager owns at most one live session.
type Manager struct {
	cfg       Config
	connector *jmx.Connector
	metrics   *Metrics
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	conn        jmx.Connection
	url         string
	onBroken    []func(connID, reason string)
	onNotify    []jmx.Listener
	lastFailure string
}

// NewManager creates a manager. metrics must not be nil.
func NewManager(cfg Config, connector *jmx.Connector, metrics *Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		connector: connector,
		metrics:   metrics,
		logger:    logger.With("subsystem", "connection"),
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connection returns the live session, or nil.
func (m *Manager) Connection() jmx.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// URL returns the endpoint of the live session, or "".
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// LastFailure returns the reason of the most recent break.
func (m *Manager) LastFailure() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFailure
}

// Metrics returns the connection metrics.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// OnBroken registers a callback run once per break, outside the manager's
// lock, after the session has been dropped. connID is the ID of the broken
// session.
func (m *Manager) OnBroken(fn func(connID, reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBroken = append(m.onBroken, fn)
}

// OnNotification registers a listener for the jmx.remote.connection.*
// notifications of every session, including a synthesized
// jmx.remote.connection.opened on connect.
func (m *Manager) OnNotification(l jmx.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNotify = append(m.onNotify, l)
}

// endpoints returns the endpoint list and TLS protocols to use.
func (m *Manager) endpoints(ctx context.Context) ([]string, []string, error) {
	list := m.cfg.URL
	if list == "" {
		if !m.cfg.LocalInstance || m.cfg.Discoverer == nil {
			return nil, nil, errors.WrapFatal(errors.MissingParameter("connectionURL"), "Manager", "endpoints", "endpoint resolution")
		}
		discovered, err := m.cfg.Discoverer.ConnectionURL(ctx, m.cfg.DomainID)
		if err != nil {
			return nil, nil, errors.WrapFatal(fmt.Errorf("%w: %w", errors.MissingParameter("connectionURL"), err),
				"Manager", "endpoints", "endpoint discovery")
		}
		list = discovered
	}
	urls := jmx.SplitServiceURLs(list)
	if len(urls) == 0 {
		return nil, nil, errors.WrapFatal(errors.MissingParameter("connectionURL"), "Manager", "endpoints", "endpoint resolution")
	}

	ssl := m.cfg.SSLOption
	if ssl == "" && m.cfg.LocalInstance && m.cfg.Discoverer != nil {
		discovered, err := m.cfg.Discoverer.SSLOption(ctx, m.cfg.DomainID, m.cfg.User, m.cfg.Password)
		if err != nil {
			m.logger.Warn("Could not determine TLS protocols, using transport defaults", "error", err)
		}
		ssl = discovered
	}
	return urls, jmx.ParseTLSProtocols(ssl), nil
}

// Connect opens a session, trying endpoints from last to first. It fails
// with ErrConnect when no endpoint answers.
func (m *Manager) Connect(ctx context.Context) (jmx.Connection, error) {
	m.mu.Lock()
	if m.state == StateConnected {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	urls, tlsProtocols, err := m.endpoints(ctx)
	if err != nil {
		m.setDisconnected()
		return nil, err
	}
	env := jmx.Environment{
		User:             m.cfg.User,
		Password:         m.cfg.Password,
		ProviderPackages: jmx.DefaultProviderPackages,
		TLSProtocols:     tlsProtocols,
	}

	var lastErr error
	for i := len(urls) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			m.setDisconnected()
			return nil, err
		}
		m.metrics.attempt()
		m.logger.Info("Connecting to management endpoint", "url", urls[i])
		conn, err := m.connector.Dial(ctx, urls[i], env)
		if err != nil {
			m.logger.Error("Connect failed", "url", urls[i], "error", err)
			lastErr = err
			continue
		}
		if err := m.adopt(conn, urls[i]); err != nil {
			m.logger.Error("Connection lost while it was set up", "url", urls[i], "error", err)
			lastErr = err
			continue
		}
		return conn, nil
	}

	m.setDisconnected()
	return nil, errors.Wrap(fmt.Errorf("%w: %w", errors.ErrConnect, lastErr), "Manager", "Connect",
		fmt.Sprintf("connect to any of %d endpoints", len(urls)))
}

// adopt makes conn the live session before listening for its connection
// events, so a close or failure reported during registration finds it. It
// fails when the session broke in the meantime.
func (m *Manager) adopt(conn jmx.Connection, url string) error {
	m.mu.Lock()
	m.conn = conn
	m.url = url
	m.state = StateConnected
	listeners := slices.Clone(m.onNotify)
	m.mu.Unlock()
	m.metrics.setConnected(true)

	m.forward(listeners, jmx.Notification{
		Type:      jmx.NotifyConnectionOpened,
		Source:    jmx.ObjectName(conn.ID()),
		TimeStamp: time.Now(),
		Message:   "connected to " + url,
	})

	conn.AddConnectionListener(func(n jmx.Notification) {
		m.handleConnectionNotification(conn, n)
	})

	m.mu.Lock()
	live := m.conn == conn
	m.mu.Unlock()
	if !live {
		return fmt.Errorf("%w: session %s broke during setup", jmx.ErrClosed, conn.ID())
	}
	m.logger.Info("Connected to management endpoint", "url", url, "connection_id", conn.ID())
	return nil
}

func (m *Manager) setDisconnected() {
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
	m.metrics.setConnected(false)
}

func (m *Manager) handleConnectionNotification(conn jmx.Connection, n jmx.Notification) {
	m.mu.Lock()
	listeners := slices.Clone(m.onNotify)
	m.mu.Unlock()
	m.forward(listeners, n)

	switch n.Type {
	case jmx.NotifyConnectionClosed, jmx.NotifyConnectionFailed:
		reason := n.Type
		if n.Message != "" {
			reason += ": " + n.Message
		}
		m.markBroken(conn, reason)
	case jmx.NotifyConnectionNotifLost:
		m.logger.Warn("Notifications lost", "connection_id", conn.ID(), "message", n.Message)
	}
}

func (m *Manager) forward(listeners []jmx.Listener, n jmx.Notification) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Connection notification listener panicked", "type", n.Type, "panic", r)
				}
			}()
			l(n)
		}()
	}
}

// markBroken drops conn if it is still the live session.
func (m *Manager) markBroken(conn jmx.Connection, reason string) {
	m.mu.Lock()
	if m.conn == nil || m.conn != conn || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.url = ""
	m.state = StateBroken
	m.lastFailure = reason
	callbacks := slices.Clone(m.onBroken)
	m.mu.Unlock()

	m.metrics.setConnected(false)
	m.metrics.brokenConnection()
	m.logger.Error("Connection to management endpoint broken", "connection_id", conn.ID(), "reason", reason)
	if err := conn.Close(); err != nil {
		m.logger.Debug("Close of broken connection failed", "error", err)
	}

	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Broken connection callback panicked", "panic", r)
				}
			}()
			fn(conn.ID(), reason)
		}()
	}
}

// ReportFailure marks the live session broken when err shows it is no
// longer usable, and reports whether it did.
func (m *Manager) ReportFailure(err error) bool {
	if !jmx.IsConnectionError(err) {
		return false
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return false
	}
	m.markBroken(conn, err.Error())
	return true
}

// Close ends the session in an orderly way. It does not count as a break.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.url = ""
	m.state = StateDisconnected
	m.mu.Unlock()

	m.metrics.setConnected(false)
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return errors.WrapTransient(err, "Manager", "Close", "close connection")
	}
	return nil
}

// Reconnect connects with backoff until it succeeds, ctx is done, or the
// retry budget is spent. Configuration errors are not retried.
func (m *Manager) Reconnect(ctx context.Context) (jmx.Connection, error) {
	cfg := m.cfg.Retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		m.logger.Warn("Reconnect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	var conn jmx.Connection
	err := retry.Do(ctx, cfg, func() error {
		c, err := m.Connect(ctx)
		if err != nil {
			if stderrors.Is(err, errors.ErrMissingConfig) || stderrors.Is(err, errors.ErrDiscovery) {
				return retry.NonRetryable(err)
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Manager", "Reconnect", "reconnect")
	}
	return conn, nil
}
