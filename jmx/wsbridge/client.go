package wsbridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/pkg/tlsutil"
)

// Protocols served by Dialer.
const (
	ProtocolWS  = "ws"
	ProtocolWSS = "wss"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Dialer opens bridge sessions. The zero value is usable.
type Dialer struct {
	// TLSConfig is the base client configuration for wss endpoints. The
	// environment's TLS protocols narrow its version range.
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *slog.Logger
}

var _ jmx.Dialer = (*Dialer)(nil)

// Register installs d for the ws and wss protocols.
func Register(c *jmx.Connector, d *Dialer) {
	c.Register(ProtocolWS, d)
	c.Register(ProtocolWSS, d)
}

// Dial implements jmx.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string, env jmx.Environment) (jmx.Connection, error) {
	target, err := websocketURL(url)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := d.tlsConfig(env.TLSProtocols)
	if err != nil {
		return nil, err
	}

	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	wd := &websocket.Dialer{
		HandshakeTimeout: handshake,
		TLSClientConfig:  tlsConfig,
	}
	ws, _, err := wd.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := newConn(ws, url, d.WriteTimeout, logger.With("transport", "wsbridge", "url", url))

	var res connectResult
	if err := c.call(ctx, request{Op: opConnect, Env: toWire(env)}, &res); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.mu.Lock()
	c.id = res.ConnectionID
	c.mu.Unlock()
	return c, nil
}

func (d *Dialer) tlsConfig(protocols []string) (*tls.Config, error) {
	if d.TLSConfig == nil && len(protocols) == 0 {
		return nil, nil
	}
	var cfg *tls.Config
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	} else {
		var err error
		if cfg, err = tlsutil.LoadClientTLSConfig(tlsutil.ClientConfig{}); err != nil {
			return nil, err
		}
	}
	if len(protocols) > 0 {
		minVersion, maxVersion, err := tlsutil.ProtocolVersions(protocols)
		if err != nil {
			return nil, err
		}
		cfg.MinVersion, cfg.MaxVersion = minVersion, maxVersion
	}
	return cfg, nil
}

// websocketURL turns service:jmx:ws://host:port/path into ws://host:port/path.
func websocketURL(serviceURL string) (string, error) {
	su, err := jmx.ParseServiceURL(serviceURL)
	if err != nil {
		return "", err
	}
	if su.Protocol != ProtocolWS && su.Protocol != ProtocolWSS {
		return "", fmt.Errorf("%w: %s", jmx.ErrUnsupportedProtocol, su.Protocol)
	}
	host := su.Host
	if su.Port != "" {
		host = net.JoinHostPort(su.Host, su.Port)
	}
	path := su.Path
	if path == "" {
		path = "/"
	}
	return su.Protocol + "://" + host + path, nil
}

// Conn is a bridge session. It implements jmx.Connection.
//
// Frames are read on one goroutine; listeners run on a second one so that a
// listener may issue requests on the same connection.
type Conn struct {
	ws           *websocket.Conn
	url          string
	writeTimeout time.Duration
	logger       *slog.Logger
	queue        *dispatchQueue

	writeMu sync.Mutex

	mu        sync.Mutex
	id        string
	closed    bool
	nextReq   int64
	nextSub   int64
	pending   map[int64]chan frame
	listeners map[jmx.ListenerID]jmx.Listener
	connSubs  map[jmx.ListenerID]jmx.Listener
}

var _ jmx.Connection = (*Conn)(nil)

func newConn(ws *websocket.Conn, url string, writeTimeout time.Duration, logger *slog.Logger) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	c := &Conn{
		ws:           ws,
		url:          url,
		writeTimeout: writeTimeout,
		logger:       logger,
		queue:        newDispatchQueue(logger),
		pending:      make(map[int64]chan frame),
		listeners:    make(map[jmx.ListenerID]jmx.Listener),
		connSubs:     make(map[jmx.ListenerID]jmx.Listener),
	}
	go c.queue.run()
	go c.readLoop()
	return c
}

// ID implements jmx.Connection.
func (c *Conn) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// URL returns the service URL the session was dialed with.
func (c *Conn) URL() string { return c.url }

// QueryNames implements jmx.Connection.
func (c *Conn) QueryNames(ctx context.Context, pattern jmx.ObjectName) ([]jmx.ObjectName, error) {
	var names []jmx.ObjectName
	if err := c.call(ctx, request{Op: opQueryNames, Name: pattern}, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetAttribute implements jmx.Connection. Values are returned as
// json.RawMessage; jmx.DecodeString and jmx.DecodeMetrics accept them.
func (c *Conn) GetAttribute(ctx context.Context, name jmx.ObjectName, attribute string) (any, error) {
	var raw json.RawMessage
	if err := c.call(ctx, request{Op: opGetAttribute, Name: name, Attribute: attribute}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// AddNotificationListener implements jmx.Connection.
func (c *Conn) AddNotificationListener(ctx context.Context, name jmx.ObjectName, l jmx.Listener) (jmx.ListenerID, error) {
	c.mu.Lock()
	c.nextSub++
	id := jmx.ListenerID(fmt.Sprintf("l-%d", c.nextSub))
	// Registered before the request so events pushed ahead of the reply are kept.
	c.listeners[id] = l
	c.mu.Unlock()

	if err := c.call(ctx, request{Op: opAddListener, Name: name, Listener: id}, nil); err != nil {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
		return "", err
	}
	return id, nil
}

// RemoveNotificationListener implements jmx.Connection.
func (c *Conn) RemoveNotificationListener(ctx context.Context, name jmx.ObjectName, id jmx.ListenerID) error {
	err := c.call(ctx, request{Op: opRemoveListener, Name: name, Listener: id}, nil)
	c.mu.Lock()
	delete(c.listeners, id)
	c.mu.Unlock()
	return err
}

// AddConnectionListener implements jmx.Connection.
func (c *Conn) AddConnectionListener(l jmx.Listener) jmx.ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := jmx.ListenerID(fmt.Sprintf("c-%d", c.nextSub))
	c.connSubs[id] = l
	return id
}

// Close implements jmx.Connection. It does not report a connection event.
func (c *Conn) Close() error {
	if !c.shutdown() {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closed by client"))
	c.writeMu.Unlock()
	_ = c.ws.Close()
	c.queue.close()
	return nil
}

// terminate ends the session from the remote side and reports it to the
// connection listeners.
func (c *Conn) terminate(notificationType, reason string) {
	if !c.shutdown() {
		return
	}
	_ = c.ws.Close()
	c.deliverConnection(jmx.Notification{Type: notificationType, Message: reason})
	c.queue.close()
}

// shutdown marks the session closed and fails pending calls. It reports
// whether this call did so.
func (c *Conn) shutdown() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan frame)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	return true
}

func (c *Conn) call(ctx context.Context, req request, out any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return jmx.ErrClosed
	}
	c.nextReq++
	req.ID = c.nextReq
	ch := make(chan frame, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.write(req); err != nil {
		c.terminate(jmx.NotifyConnectionFailed, err.Error())
		return fmt.Errorf("%w: %v", jmx.ErrClosed, err)
	}

	select {
	case f, ok := <-ch:
		if !ok {
			return jmx.ErrClosed
		}
		if f.Error != nil {
			return f.Error.err()
		}
		if out != nil && len(f.Result) > 0 {
			if err := json.Unmarshal(f.Result, out); err != nil {
				return fmt.Errorf("wsbridge: decode %s result: %w", req.Op, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *Conn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *Conn) readLoop() {
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			c.terminate(jmx.NotifyConnectionFailed, err.Error())
			return
		}
		if f.Event != nil {
			c.handleEvent(f.Event)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Reply without pending request", "id", f.ID)
			continue
		}
		ch <- f
	}
}

func (c *Conn) handleEvent(ev *event) {
	n := ev.Notification
	if ev.Listener == "" {
		switch n.Type {
		case jmx.NotifyConnectionFailed, jmx.NotifyConnectionClosed:
			c.terminate(n.Type, n.Message)
		default:
			c.deliverConnection(n)
		}
		return
	}
	c.mu.Lock()
	l, ok := c.listeners[ev.Listener]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.queue.push(func() { l(n) })
}

func (c *Conn) deliverConnection(n jmx.Notification) {
	if n.TimeStamp.IsZero() {
		n.TimeStamp = time.Now()
	}
	c.mu.Lock()
	n.Source = jmx.ObjectName(c.id)
	listeners := make([]jmx.Listener, 0, len(c.connSubs))
	for _, l := range c.connSubs {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l := l
		c.queue.push(func() { l(n) })
	}
}

// dispatchQueue runs callbacks in order on one goroutine. It never blocks
// the producer.
type dispatchQueue struct {
	logger *slog.Logger
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
}

func newDispatchQueue(logger *slog.Logger) *dispatchQueue {
	q := &dispatchQueue{logger: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *dispatchQueue) push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, fn)
	q.cond.Signal()
}

// close lets queued callbacks finish and then stops the queue.
func (q *dispatchQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *dispatchQueue) run() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()
		q.call(fn)
	}
}

func (q *dispatchQueue) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Notification listener panicked", "panic", r)
		}
	}()
	fn()
}
