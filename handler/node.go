package handler

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/markheger/streamsx.metrics/emitter"
	"github.com/markheger/streamsx.metrics/jmx"
)

// Node is one handler of the tree.
type Node struct {
	tree *Tree
	// parent is nil for the root. Nodes never lock their parent.
	parent *Node
	level  Level
	name   jmx.ObjectName
	id     identity

	mu       sync.Mutex
	closed   bool
	listener jmx.ListenerID
	children map[string]*Node
}

// Level returns the handler's level.
func (n *Node) Level() Level { return n.level }

// Name returns the MBean the handler listens on.
func (n *Node) Name() jmx.ObjectName { return n.name }

// open subscribes to the handler's MBean and then enumerates its children.
// Subscribing first means no child added during the scan is missed; the
// handler's lock holds such notifications back until the scan is done.
func (n *Node) open(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	t := n.tree

	id, err := t.opts.Conn.AddNotificationListener(ctx, n.name, n.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", n.name, err)
	}
	n.listener = id
	t.opened(n.level)

	if n.level == LevelJob && t.opts.JobStatus {
		n.emitJobStatusLocked(ctx, "")
	}
	if n.level >= t.opts.Depth {
		return nil
	}
	for _, childType := range n.level.childTypes() {
		names, err := t.opts.Conn.QueryNames(ctx, jmx.ChildPattern(n.name, childType))
		if err != nil {
			return fmt.Errorf("enumerate %s children of %s: %w", childType, n.name, err)
		}
		for _, name := range names {
			if _, err := n.addChildLocked(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// close unregisters the listener, marks the handler closed, and closes every
// child. It returns all failures combined.
func (n *Node) close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	t := n.tree

	var err error
	if n.listener != "" {
		if rerr := t.opts.Conn.RemoveNotificationListener(t.ctx, n.name, n.listener); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("unsubscribe from %s: %w", n.name, rerr))
		}
		t.closed(n.level)
	}
	n.closed = true

	for key, child := range n.children {
		err = multierr.Append(err, child.close())
		delete(n.children, key)
	}
	return err
}

// addChildLocked creates and opens the handler for name unless it exists or
// the filter rejects it. It returns the new handler, or nil.
func (n *Node) addChildLocked(ctx context.Context, name jmx.ObjectName) (*Node, error) {
	key := childKey(n.level, name)
	if key == "" {
		return nil, nil
	}
	if _, ok := n.children[key]; ok {
		return nil, nil
	}
	id, selected, err := n.childIdentity(ctx, name)
	if err != nil {
		if stderrors.Is(err, jmx.ErrNotFound) {
			// Gone again before we got to it; the removal follows.
			return nil, nil
		}
		if jmx.IsConnectionError(err) {
			return nil, err
		}
		n.tree.logger.Warn("Child not handled", "mbean", name, "error", err)
		return nil, nil
	}
	if !selected {
		return nil, nil
	}

	child := n.tree.newNode(n, n.level+1, name, id)
	n.children[key] = child
	if err := child.open(ctx); err != nil {
		delete(n.children, key)
		if cerr := child.close(); cerr != nil {
			n.tree.logger.Debug("Teardown of half-open handler", "mbean", name, "error", cerr)
		}
		if stderrors.Is(err, jmx.ErrNotFound) {
			return nil, nil
		}
		if jmx.IsConnectionError(err) {
			return nil, err
		}
		n.tree.logger.Warn("Child not handled", "mbean", name, "error", err)
		return nil, nil
	}
	return child, nil
}

// childIdentity derives the child's ids from name and asks the filter
// whether it is selected.
func (n *Node) childIdentity(ctx context.Context, name jmx.ObjectName) (identity, bool, error) {
	f := n.tree.opts.Filter
	id := n.id
	switch n.level + 1 {
	case LevelJob:
		id.jobID = name.Property(jmx.KeyJob)
		v, err := n.tree.opts.Conn.GetAttribute(ctx, name, jmx.AttrName)
		if err != nil {
			return id, false, fmt.Errorf("read job name: %w", err)
		}
		if id.jobName, err = jmx.DecodeString(v); err != nil {
			return id, false, err
		}
		return id, f.MatchesJob(id.instanceID, id.jobName), nil
	case LevelPE:
		id.peID = name.Property(jmx.KeyPE)
		return id, f.MatchesPE(id.instanceID, id.jobName, id.peID), nil
	case LevelOperator:
		id.operator = name.Property(jmx.KeyOperator)
		return id, f.MatchesOperator(id.instanceID, id.jobName, id.peID, id.operator), nil
	case LevelPort:
		id.portKind = portKindOf(name)
		id.portIndex = name.Property(jmx.KeyPort)
		return id, f.MatchesPort(id.instanceID, id.jobName, id.peID, id.operator, id.portKind, id.portIndex), nil
	}
	return id, false, nil
}

// handle is the handler's notification listener.
func (n *Node) handle(notif jmx.Notification) {
	t := n.tree
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Notification handling panicked",
				"mbean", n.name, "type", notif.Type, "panic", r)
		}
	}()
	t.received(notif.Type)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	ctx := t.ctx

	if level := jmx.LogLevel(notif.Type); level != "" {
		if n.level == LevelInstance && t.opts.Logs {
			n.emitLogLocked(notif, level)
		}
		return
	}
	if notif.Type == jmx.NotifyJobStatusChanged {
		if n.level == LevelJob && t.opts.JobStatus {
			n.emitJobStatusLocked(ctx, notif.UserData[jmx.UserDataStatus])
		}
		n.emitNotificationLocked(n.id, notif)
		return
	}

	added, removed := n.childEvent(notif.Type)
	switch {
	case added:
		n.childAddedLocked(ctx, notif)
	case removed:
		n.childRemovedLocked(notif)
	case notif.Type == jmx.NotifyMetricAdded || notif.Type == jmx.NotifyMetricRemoved:
		if n.metricSelected(notif.UserData[jmx.UserDataMetric]) {
			n.emitNotificationLocked(n.id, notif)
		}
	default:
		n.emitNotificationLocked(n.id, notif)
	}
}

// childEvent classifies t as an added or removed notification for a child
// type this handler tracks.
func (n *Node) childEvent(t string) (added, removed bool) {
	if n.level >= n.tree.opts.Depth {
		return false, false
	}
	for _, childType := range n.level.childTypes() {
		a, r := jmx.ChildNotifications(childType)
		if t == a {
			return true, false
		}
		if t == r {
			return false, true
		}
	}
	return false, false
}

func (n *Node) childAddedLocked(ctx context.Context, notif jmx.Notification) {
	if notif.Child == "" {
		n.tree.logger.Warn("Child notification without child", "mbean", n.name, "type", notif.Type)
		return
	}
	child, err := n.addChildLocked(ctx, notif.Child)
	if err != nil {
		if !n.tree.connectionError(err) {
			n.tree.logger.Warn("Child not handled", "mbean", notif.Child, "error", err)
		}
		return
	}
	if child != nil {
		n.tree.logger.Debug("Handler added", "level", child.level, "mbean", child.name)
		n.emitNotificationLocked(child.id, notif)
	}
}

func (n *Node) childRemovedLocked(notif jmx.Notification) {
	key := childKey(n.level, notif.Child)
	child, ok := n.children[key]
	if !ok {
		return
	}
	delete(n.children, key)
	if err := child.close(); err != nil && !jmx.IsConnectionError(err) {
		n.tree.logger.Warn("Handler closed with errors", "mbean", child.name, "error", err)
	}
	n.tree.logger.Debug("Handler removed", "level", child.level, "mbean", child.name)
	n.emitNotificationLocked(child.id, notif)
}

// metricSelected reports whether the filter selects metric on this handler.
func (n *Node) metricSelected(metric string) bool {
	f, id := n.tree.opts.Filter, n.id
	switch n.level {
	case LevelPE:
		return f.MatchesPEMetric(id.instanceID, id.jobName, id.peID, metric)
	case LevelOperator:
		return f.MatchesOperatorMetric(id.instanceID, id.jobName, id.peID, id.operator, metric)
	case LevelPort:
		return f.MatchesPortMetric(id.instanceID, id.jobName, id.peID, id.operator, id.portKind, id.portIndex, metric)
	}
	return false
}

// emitJobStatusLocked emits the job's status. An empty status is read from
// the MBean.
func (n *Node) emitJobStatusLocked(ctx context.Context, status string) {
	t := n.tree
	if status == "" {
		v, err := t.opts.Conn.GetAttribute(ctx, n.name, jmx.AttrStatus)
		if err != nil {
			if !t.connectionError(err) {
				t.logger.Warn("Job status not read", "job", n.id.jobID, "error", err)
			}
			return
		}
		if status, err = jmx.DecodeString(v); err != nil {
			t.logger.Warn("Job status not read", "job", n.id.jobID, "error", err)
			return
		}
	}
	t.emit(emitter.JobStatus{
		InstanceID: n.id.instanceID,
		JobID:      n.id.jobID,
		JobName:    n.id.jobName,
		Status:     status,
	})
}

func (n *Node) emitLogLocked(notif jmx.Notification, level string) {
	t := n.tree
	if !t.opts.Filter.MatchesLog(n.id.instanceID, level) {
		return
	}
	t.emit(emitter.Log{
		InstanceID: n.id.instanceID,
		JobID:      notif.UserData[jmx.UserDataJobID],
		PEID:       notif.UserData[jmx.UserDataPEID],
		Operator:   notif.UserData[jmx.UserDataOperator],
		Level:      level,
		Message:    notif.Message,
	})
}

func (n *Node) emitNotificationLocked(id identity, notif jmx.Notification) {
	if !n.tree.opts.Notifications {
		return
	}
	msg := notif.Message
	if m := notif.UserData[jmx.UserDataMetric]; m != "" && msg == "" {
		msg = m
	}
	if s := notif.UserData[jmx.UserDataStatus]; s != "" && msg == "" {
		msg = s
	}
	n.tree.emit(emitter.Notification{
		InstanceID: id.instanceID,
		JobID:      id.jobID,
		JobName:    id.jobName,
		PEID:       id.peID,
		Operator:   id.operator,
		NotifyType: notif.Type,
		Message:    msg,
	})
}

// portNumber returns the numeric port index, or -1.
func (id identity) portNumber() int {
	i, err := strconv.Atoi(id.portIndex)
	if err != nil {
		return -1
	}
	return i
}
