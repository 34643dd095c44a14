package jmx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Environment keys handed to a dialer, named after the JMX remote API.
const (
	EnvCredentials      = "jmx.remote.credentials"
	EnvProviderPackages = "jmx.remote.protocol.provider.pkgs"
	EnvTLSProtocols     = "jmx.remote.tls.enabled.protocols"

	// DefaultProviderPackages is the provider hint of the streaming runtime.
	DefaultProviderPackages = "com.ibm.streams.management"
)

var (
	// ErrClosed is returned by operations on a closed or broken connection.
	ErrClosed = errors.New("jmx: connection closed")
	// ErrUnsupportedProtocol is returned when no dialer serves a URL's protocol.
	ErrUnsupportedProtocol = errors.New("jmx: unsupported protocol")
	// ErrAuthentication is returned when the endpoint rejects the credentials.
	ErrAuthentication = errors.New("jmx: authentication failed")
	// ErrNotFound is returned for an unknown MBean or attribute.
	ErrNotFound = errors.New("jmx: not found")
)

// Environment is the connect-time environment of a dial.
type Environment struct {
	User             string
	Password         string
	ProviderPackages string
	// TLSProtocols lists enabled TLS protocols, e.g. "TLSv1.2". Empty means
	// the transport default.
	TLSProtocols []string
}

// Map renders the environment with the JMX remote API key names.
func (e Environment) Map() map[string]any {
	m := map[string]any{
		EnvCredentials: []string{e.User, e.Password},
	}
	if e.ProviderPackages != "" {
		m[EnvProviderPackages] = e.ProviderPackages
	}
	if len(e.TLSProtocols) > 0 {
		m[EnvTLSProtocols] = strings.Join(e.TLSProtocols, ",")
	}
	return m
}

// ParseTLSProtocols splits an sslOption value such as "TLSv1.2,TLSv1.3".
func ParseTLSProtocols(sslOption string) []string {
	var out []string
	for _, p := range strings.Split(sslOption, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Connection is a live session with a management endpoint.
type Connection interface {
	// ID identifies the session in logs and connection notifications.
	ID() string
	// QueryNames returns the registered names selected by pattern.
	QueryNames(ctx context.Context, pattern ObjectName) ([]ObjectName, error)
	// GetAttribute reads one attribute of an MBean.
	GetAttribute(ctx context.Context, name ObjectName, attribute string) (any, error)
	// AddNotificationListener subscribes to all notifications of one MBean.
	AddNotificationListener(ctx context.Context, name ObjectName, l Listener) (ListenerID, error)
	// RemoveNotificationListener cancels a subscription.
	RemoveNotificationListener(ctx context.Context, name ObjectName, id ListenerID) error
	// AddConnectionListener subscribes to jmx.remote.connection.* notifications.
	AddConnectionListener(l Listener) ListenerID
	// Close ends the session. A closed connection does not report
	// jmx.remote.connection.failed.
	Close() error
}

// Dialer opens connections to one kind of endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string, env Environment) (Connection, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string, env Environment) (Connection, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string, env Environment) (Connection, error) {
	return f(ctx, url, env)
}

// Connector dispatches dials by service URL protocol.
type Connector struct {
	mu      sync.RWMutex
	dialers map[string]Dialer
}

// NewConnector returns an empty connector.
func NewConnector() *Connector {
	return &Connector{dialers: make(map[string]Dialer)}
}

// Register installs the dialer for a protocol, replacing any previous one.
func (c *Connector) Register(protocol string, d Dialer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialers[protocol] = d
}

// Protocols lists registered protocols.
func (c *Connector) Protocols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.dialers))
	for p := range c.dialers {
		out = append(out, p)
	}
	return out
}

// Dial parses url and hands it to the dialer of its protocol.
func (c *Connector) Dial(ctx context.Context, url string, env Environment) (Connection, error) {
	su, err := ParseServiceURL(url)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	d, ok := c.dialers[su.Protocol]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, su.Protocol)
	}
	return d.Dial(ctx, url, env)
}

// IsConnectionError reports whether err means the session is no longer usable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
