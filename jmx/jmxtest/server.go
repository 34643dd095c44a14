// Package jmxtest provides an in-memory management endpoint for tests and
// demos. A Server holds an MBean tree for one instance, serves any number of
// connections through its Dial method, and emits the same added/removed,
// status, log, and connection notifications a live runtime does.
package jmxtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markheger/streamsx.metrics/jmx"
)

type mbean struct {
	name   jmx.ObjectName
	parent jmx.ObjectName
	attrs  map[string]any
}

type subscription struct {
	conn *Conn
	name jmx.ObjectName
	fn   jmx.Listener
}

// Server is an in-memory MBean server rooted at one instance.
type Server struct {
	instanceID string

	mu        sync.Mutex
	mbeans    map[jmx.ObjectName]*mbean
	subs      map[jmx.ListenerID]subscription
	conns     map[string]*Conn
	failDial  map[string]error
	dialed    []string
	user      string
	password  string
	sequence  int64
	lastEnv   jmx.Environment
	failAttrs error
	// breakOnListen fails the next connection that registers a connection
	// listener, before the registration returns.
	breakOnListen *string
}

// NewServer returns a server holding only the instance MBean.
func NewServer(instanceID string) *Server {
	s := &Server{
		instanceID: instanceID,
		mbeans:     make(map[jmx.ObjectName]*mbean),
		subs:       make(map[jmx.ListenerID]subscription),
		conns:      make(map[string]*Conn),
		failDial:   make(map[string]error),
	}
	root := jmx.InstanceName(instanceID)
	s.mbeans[root] = &mbean{name: root, attrs: map[string]any{"Id": instanceID}}
	return s
}

// InstanceID returns the id of the served instance.
func (s *Server) InstanceID() string { return s.instanceID }

// RequireCredentials makes Dial reject any other user/password pair.
func (s *Server) RequireCredentials(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.password = user, password
}

// FailDial makes dials of url fail with err. A nil err clears the failure.
func (s *Server) FailDial(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failDial, url)
		return
	}
	s.failDial[url] = err
}

// FailAttributes makes every attribute read fail with err until cleared with nil.
func (s *Server) FailAttributes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAttrs = err
}

// BreakOnConnectionListener makes the next AddConnectionListener call fail
// its connection with reason. The failure is delivered to the listener
// being registered before the call returns.
func (s *Server) BreakOnConnectionListener(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakOnListen = &reason
}

func (s *Server) takeBreakOnListen() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakOnListen == nil {
		return "", false
	}
	reason := *s.breakOnListen
	s.breakOnListen = nil
	return reason, true
}

// Dialed returns the URLs dialed so far, in order.
func (s *Server) Dialed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dialed...)
}

// LastEnvironment returns the environment of the most recent dial.
func (s *Server) LastEnvironment() jmx.Environment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEnv
}

// Dial implements jmx.Dialer.
func (s *Server) Dial(ctx context.Context, url string, env jmx.Environment) (jmx.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.dialed = append(s.dialed, url)
	s.lastEnv = env
	if err, ok := s.failDial[url]; ok {
		s.mu.Unlock()
		return nil, err
	}
	if s.user != "" && (env.User != s.user || env.Password != s.password) {
		s.mu.Unlock()
		return nil, jmx.ErrAuthentication
	}
	c := &Conn{server: s, id: uuid.NewString(), url: url, connSubs: make(map[jmx.ListenerID]jmx.Listener)}
	s.conns[c.id] = c
	s.mu.Unlock()
	return c, nil
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// ListenerCount returns the number of listeners registered on name.
func (s *Server) ListenerCount(name jmx.ObjectName) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if sub.name == name {
			n++
		}
	}
	return n
}

// TotalListeners returns the number of registered MBean listeners.
func (s *Server) TotalListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// AddJob registers a job and notifies the instance's listeners.
func (s *Server) AddJob(jobID, name, status string) jmx.ObjectName {
	n := jmx.JobName(s.instanceID, jobID)
	s.register(n, jmx.InstanceName(s.instanceID), map[string]any{jmx.AttrName: name, jmx.AttrStatus: status})
	return n
}

// RemoveJob unregisters a job and everything below it.
func (s *Server) RemoveJob(jobID string) {
	s.unregister(jmx.JobName(s.instanceID, jobID))
}

// SetJobStatus changes a job's status and emits job.status.changed.
func (s *Server) SetJobStatus(jobID, status string) {
	n := jmx.JobName(s.instanceID, jobID)
	s.mu.Lock()
	mb, ok := s.mbeans[n]
	if !ok {
		s.mu.Unlock()
		return
	}
	mb.attrs[jmx.AttrStatus] = status
	s.mu.Unlock()
	s.emit(n, jmx.Notification{
		Type:     jmx.NotifyJobStatusChanged,
		UserData: map[string]string{jmx.UserDataJobID: jobID, jmx.UserDataStatus: status},
	})
}

// AddPE registers a processing element below a job.
func (s *Server) AddPE(jobID, peID string) jmx.ObjectName {
	n := jmx.PEName(s.instanceID, jobID, peID)
	s.register(n, jmx.JobName(s.instanceID, jobID), map[string]any{})
	return n
}

// RemovePE unregisters a processing element and everything below it.
func (s *Server) RemovePE(jobID, peID string) {
	s.unregister(jmx.PEName(s.instanceID, jobID, peID))
}

// AddOperator registers an operator below a processing element.
func (s *Server) AddOperator(jobID, peID, operator string) jmx.ObjectName {
	n := jmx.OperatorName(s.instanceID, jobID, peID, operator)
	s.register(n, jmx.PEName(s.instanceID, jobID, peID), map[string]any{})
	return n
}

// RemoveOperator unregisters an operator and its ports.
func (s *Server) RemoveOperator(jobID, peID, operator string) {
	s.unregister(jmx.OperatorName(s.instanceID, jobID, peID, operator))
}

// AddInputPort registers an operator input port.
func (s *Server) AddInputPort(jobID, peID, operator string, index int) jmx.ObjectName {
	n := jmx.PortName(jmx.TypeInputPort, s.instanceID, jobID, peID, operator, index)
	s.register(n, jmx.OperatorName(s.instanceID, jobID, peID, operator), map[string]any{})
	return n
}

// AddOutputPort registers an operator output port.
func (s *Server) AddOutputPort(jobID, peID, operator string, index int) jmx.ObjectName {
	n := jmx.PortName(jmx.TypeOutputPort, s.instanceID, jobID, peID, operator, index)
	s.register(n, jmx.OperatorName(s.instanceID, jobID, peID, operator), map[string]any{})
	return n
}

// SetMetrics replaces the metrics of an MBean. Metrics not present before
// are announced with metric.added, dropped ones with metric.removed.
func (s *Server) SetMetrics(name jmx.ObjectName, metrics ...jmx.Metric) {
	s.mu.Lock()
	mb, ok := s.mbeans[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	old, _ := mb.attrs[jmx.MetricsAttribute].([]jmx.Metric)
	mb.attrs[jmx.MetricsAttribute] = append([]jmx.Metric(nil), metrics...)
	s.mu.Unlock()

	before := make(map[string]bool, len(old))
	for _, m := range old {
		before[m.Name] = true
	}
	after := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		after[m.Name] = true
		if !before[m.Name] {
			s.emit(name, jmx.Notification{Type: jmx.NotifyMetricAdded, UserData: map[string]string{jmx.UserDataMetric: m.Name}})
		}
	}
	for _, m := range old {
		if !after[m.Name] {
			s.emit(name, jmx.Notification{Type: jmx.NotifyMetricRemoved, UserData: map[string]string{jmx.UserDataMetric: m.Name}})
		}
	}
}

// Log emits an application log notification on the instance MBean.
func (s *Server) Log(level, jobID, peID, operator, message string) {
	s.emit(jmx.InstanceName(s.instanceID), jmx.Notification{
		Type:    jmx.NotifyLogPrefix + level,
		Message: message,
		UserData: map[string]string{
			jmx.UserDataJobID: jobID, jmx.UserDataPEID: peID, jmx.UserDataOperator: operator,
		},
	})
}

// Notify emits an arbitrary notification from an MBean.
func (s *Server) Notify(name jmx.ObjectName, n jmx.Notification) {
	s.emit(name, n)
}

// Break fails every open connection: each reports jmx.remote.connection.failed
// and subsequent calls on it return jmx.ErrClosed.
func (s *Server) Break(reason string) {
	for _, c := range s.openConns() {
		c.fail(jmx.NotifyConnectionFailed, reason)
	}
}

// CloseRemote closes every open connection from the server side, reporting
// jmx.remote.connection.closed.
func (s *Server) CloseRemote(reason string) {
	for _, c := range s.openConns() {
		c.fail(jmx.NotifyConnectionClosed, reason)
	}
}

// LoseNotifications reports jmx.remote.connection.notifs.lost on every open
// connection without breaking it.
func (s *Server) LoseNotifications(message string) {
	for _, c := range s.openConns() {
		c.deliverConn(jmx.Notification{Type: jmx.NotifyConnectionNotifLost, Message: message})
	}
}

func (s *Server) openConns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Server) register(n, parent jmx.ObjectName, attrs map[string]any) {
	s.mu.Lock()
	if _, exists := s.mbeans[n]; exists {
		s.mu.Unlock()
		return
	}
	if _, ok := s.mbeans[parent]; !ok {
		s.mu.Unlock()
		panic(fmt.Sprintf("jmxtest: parent %s of %s is not registered", parent, n))
	}
	s.mbeans[n] = &mbean{name: n, parent: parent, attrs: attrs}
	s.mu.Unlock()

	added, _ := jmx.ChildNotifications(n.Type())
	s.emit(parent, jmx.Notification{Type: added, Child: n})
}

func (s *Server) unregister(n jmx.ObjectName) {
	s.mu.Lock()
	mb, ok := s.mbeans[n]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.dropLocked(n)
	s.mu.Unlock()

	_, removed := jmx.ChildNotifications(n.Type())
	s.emit(mb.parent, jmx.Notification{Type: removed, Child: n})
}

// dropLocked removes n, its descendants, and their subscriptions.
func (s *Server) dropLocked(n jmx.ObjectName) {
	for child, mb := range s.mbeans {
		if mb.parent == n {
			s.dropLocked(child)
		}
	}
	delete(s.mbeans, n)
	for id, sub := range s.subs {
		if sub.name == n {
			delete(s.subs, id)
		}
	}
}

// emit delivers a notification to the listeners of name without holding the
// server lock, so listeners may call back into their connection.
func (s *Server) emit(name jmx.ObjectName, n jmx.Notification) {
	s.mu.Lock()
	s.sequence++
	n.Source = name
	n.Sequence = s.sequence
	if n.TimeStamp.IsZero() {
		n.TimeStamp = time.Now()
	}
	type target struct {
		id jmx.ListenerID
		fn jmx.Listener
	}
	var targets []target
	for id, sub := range s.subs {
		if sub.name == name && !sub.conn.isClosed() {
			targets = append(targets, target{id, sub.fn})
		}
	}
	s.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	for _, t := range targets {
		t.fn(n)
	}
}

func (s *Server) nextListenerID() jmx.ListenerID {
	s.sequence++
	return jmx.ListenerID(fmt.Sprintf("l-%08d", s.sequence))
}

func (s *Server) removeConn(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
	for id, sub := range s.subs {
		if sub.conn == c {
			delete(s.subs, id)
		}
	}
}

// JobIDs returns the registered job ids, sorted numerically when possible.
func (s *Server) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for n := range s.mbeans {
		if n.Type() == jmx.TypeJob {
			ids = append(ids, n.Property(jmx.KeyJob))
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}
