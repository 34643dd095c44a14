package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/markheger/streamsx.metrics/jmx"
)

const defaultOpTimeout = 30 * time.Second

// Handler serves bridge sessions over websocket. Each session dials the
// backend on its connect request and relays operations and notifications.
type Handler struct {
	backend    jmx.Dialer
	backendURL string
	upgrader   websocket.Upgrader
	opTimeout  time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	sessions int
}

// NewHandler returns a handler dialing backendURL on backend for each session.
func NewHandler(backend jmx.Dialer, backendURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		backend:    backend,
		backendURL: backendURL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opTimeout: defaultOpTimeout,
		logger:    logger.With("component", "wsbridge"),
	}
}

// Sessions returns the number of open sessions.
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.mu.Lock()
	h.sessions++
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.sessions--
		h.mu.Unlock()
	}()

	s := &session{
		h:    h,
		ws:   ws,
		subs: make(map[jmx.ListenerID]subscription),
	}
	s.serve()
}

type subscription struct {
	name      jmx.ObjectName
	backendID jmx.ListenerID
}

type session struct {
	h       *Handler
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	backend jmx.Connection
	subs    map[jmx.ListenerID]subscription
}

func (s *session) serve() {
	defer s.close()
	for {
		var req request
		if err := s.ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.h.logger.Debug("Session read ended", "error", err)
			}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.h.opTimeout)
		result, err := s.handle(ctx, req)
		cancel()
		reply := frame{ID: req.ID}
		if err != nil {
			reply.Error = toWireError(err)
		} else if result != nil {
			raw, mErr := json.Marshal(result)
			if mErr != nil {
				reply.Error = &wireError{Code: codeFailed, Message: mErr.Error()}
			} else {
				reply.Result = raw
			}
		}
		if err := s.write(reply); err != nil {
			return
		}
	}
}

func (s *session) handle(ctx context.Context, req request) (any, error) {
	if req.Op == opConnect {
		return s.connect(ctx, req.Env)
	}
	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()
	if backend == nil {
		return nil, &badRequest{"connect first"}
	}

	switch req.Op {
	case opQueryNames:
		names, err := backend.QueryNames(ctx, req.Name)
		if names == nil {
			names = []jmx.ObjectName{}
		}
		return names, err
	case opGetAttribute:
		return backend.GetAttribute(ctx, req.Name, req.Attribute)
	case opAddListener:
		return nil, s.addListener(ctx, backend, req.Name, req.Listener)
	case opRemoveListener:
		return nil, s.removeListener(ctx, backend, req.Name, req.Listener)
	default:
		return nil, &badRequest{fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (s *session) connect(ctx context.Context, env *environment) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		return nil, &badRequest{"already connected"}
	}
	conn, err := s.h.backend.Dial(ctx, s.h.backendURL, env.jmx())
	if err != nil {
		return nil, err
	}
	conn.AddConnectionListener(s.connectionEvent)
	s.backend = conn
	return connectResult{ConnectionID: conn.ID()}, nil
}

func (s *session) addListener(ctx context.Context, backend jmx.Connection, name jmx.ObjectName, id jmx.ListenerID) error {
	if id == "" {
		return &badRequest{"listener id required"}
	}
	backendID, err := backend.AddNotificationListener(ctx, name, func(n jmx.Notification) {
		_ = s.write(frame{Event: &event{Listener: id, Notification: n}})
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subs[id] = subscription{name: name, backendID: backendID}
	s.mu.Unlock()
	return nil
}

func (s *session) removeListener(ctx context.Context, backend jmx.Connection, name jmx.ObjectName, id jmx.ListenerID) error {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: listener %s on %s", jmx.ErrNotFound, id, name)
	}
	return backend.RemoveNotificationListener(ctx, sub.name, sub.backendID)
}

// connectionEvent relays backend connection events; a failed or closed
// backend ends the session.
func (s *session) connectionEvent(n jmx.Notification) {
	_ = s.write(frame{Event: &event{Notification: n}})
	if n.Type == jmx.NotifyConnectionFailed || n.Type == jmx.NotifyConnectionClosed {
		_ = s.ws.Close()
	}
}

func (s *session) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return s.ws.WriteJSON(f)
}

func (s *session) close() {
	_ = s.ws.Close()
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()
	if backend != nil {
		if err := backend.Close(); err != nil {
			s.h.logger.Warn("Closing backend connection failed", "error", err)
		}
	}
}

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }
