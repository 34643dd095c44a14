package jmxtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markheger/streamsx.metrics/jmx"
)

// Conn is one session with a Server. It implements jmx.Connection.
type Conn struct {
	server *Server
	id     string
	url    string

	mu       sync.Mutex
	closed   bool
	connSubs map[jmx.ListenerID]jmx.Listener
	nextSub  int
}

var _ jmx.Connection = (*Conn)(nil)

// ID implements jmx.Connection.
func (c *Conn) ID() string { return c.id }

// URL returns the URL the connection was dialed with.
func (c *Conn) URL() string { return c.url }

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return jmx.ErrClosed
	}
	return nil
}

// QueryNames implements jmx.Connection.
func (c *Conn) QueryNames(ctx context.Context, pattern jmx.ObjectName) ([]jmx.ObjectName, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []jmx.ObjectName
	for n := range s.mbeans {
		if n.Matches(pattern) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// GetAttribute implements jmx.Connection.
func (c *Conn) GetAttribute(ctx context.Context, name jmx.ObjectName, attribute string) (any, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAttrs != nil {
		return nil, s.failAttrs
	}
	mb, ok := s.mbeans[name]
	if !ok {
		return nil, fmt.Errorf("%w: mbean %s", jmx.ErrNotFound, name)
	}
	v, ok := mb.attrs[attribute]
	if !ok {
		return nil, fmt.Errorf("%w: attribute %s of %s", jmx.ErrNotFound, attribute, name)
	}
	if metrics, isMetrics := v.([]jmx.Metric); isMetrics {
		return append([]jmx.Metric(nil), metrics...), nil
	}
	return v, nil
}

// AddNotificationListener implements jmx.Connection.
func (c *Conn) AddNotificationListener(ctx context.Context, name jmx.ObjectName, l jmx.Listener) (jmx.ListenerID, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mbeans[name]; !ok {
		return "", fmt.Errorf("%w: mbean %s", jmx.ErrNotFound, name)
	}
	id := s.nextListenerID()
	s.subs[id] = subscription{conn: c, name: name, fn: l}
	return id, nil
}

// RemoveNotificationListener implements jmx.Connection. Removing a listener
// whose MBean is already gone succeeds.
func (c *Conn) RemoveNotificationListener(ctx context.Context, name jmx.ObjectName, id jmx.ListenerID) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		if _, exists := s.mbeans[name]; exists {
			return fmt.Errorf("%w: listener %s on %s", jmx.ErrNotFound, id, name)
		}
		return nil
	}
	if sub.conn != c || sub.name != name {
		return fmt.Errorf("%w: listener %s on %s", jmx.ErrNotFound, id, name)
	}
	delete(s.subs, id)
	return nil
}

// AddConnectionListener implements jmx.Connection.
func (c *Conn) AddConnectionListener(l jmx.Listener) jmx.ListenerID {
	c.mu.Lock()
	c.nextSub++
	id := jmx.ListenerID(fmt.Sprintf("c-%04d", c.nextSub))
	c.connSubs[id] = l
	c.mu.Unlock()

	if reason, ok := c.server.takeBreakOnListen(); ok {
		c.fail(jmx.NotifyConnectionFailed, reason)
	}
	return id
}

// Close implements jmx.Connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.server.removeConn(c)
	return nil
}

// fail closes the connection from the remote side and reports it.
func (c *Conn) fail(notificationType, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.server.removeConn(c)
	c.deliverConn(jmx.Notification{Type: notificationType, Message: reason})
}

func (c *Conn) deliverConn(n jmx.Notification) {
	c.mu.Lock()
	ids := make([]jmx.ListenerID, 0, len(c.connSubs))
	for id := range c.connSubs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]jmx.Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.connSubs[id])
	}
	c.mu.Unlock()

	c.server.mu.Lock()
	c.server.sequence++
	n.Sequence = c.server.sequence
	c.server.mu.Unlock()
	n.Source = jmx.ObjectName(c.id)
	if n.TimeStamp.IsZero() {
		n.TimeStamp = time.Now()
	}
	for _, l := range listeners {
		l(n)
	}
}
