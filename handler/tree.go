package handler

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/markheger/streamsx.metrics/emitter"
	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/filter"
	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/metric"
)

// Options selects what a tree mirrors and what it emits.
type Options struct {
	Conn       jmx.Connection
	Filter     *filter.Filter
	InstanceID string

	// Depth is the deepest level that gets handlers. Job status needs
	// LevelJob, metrics and notifications need LevelPort.
	Depth Level

	// Logs emits a Log record for each selected log notification on the
	// instance.
	Logs bool
	// JobStatus emits a JobStatus record for each job on creation and on
	// every status change.
	JobStatus bool
	// Notifications emits a Notification record for each lifecycle
	// notification of a selected MBean.
	Notifications bool

	Emitter *emitter.Emitter

	// OnConnectionError is told about failures that indicate a broken
	// connection. It must not close the tree synchronously.
	OnConnectionError func(error)

	// Source labels the tree's metrics.
	Source  string
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Tree is the handler tree of one instance.
type Tree struct {
	opts   Options
	logger *slog.Logger

	// ctx lives as long as the tree; callbacks use it.
	ctx    context.Context
	cancel context.CancelFunc

	root   *Node
	counts [LevelPort + 1]atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Build creates the handler tree for opts.InstanceID and scans the current
// hierarchy. Children added while the scan runs are picked up exactly once.
func Build(ctx context.Context, opts Options) (*Tree, error) {
	switch {
	case opts.Conn == nil:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "handler", "Build", "connection is required")
	case opts.Filter == nil:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "handler", "Build", "filter is required")
	case opts.Emitter == nil:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "handler", "Build", "emitter is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Depth < LevelInstance || opts.Depth > LevelPort {
		opts.Depth = LevelPort
	}

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &Tree{
		opts:   opts,
		logger: opts.Logger.With("instance", opts.InstanceID),
		ctx:    life,
		cancel: cancel,
	}
	t.root = t.newNode(nil, LevelInstance, jmx.InstanceName(opts.InstanceID), identity{instanceID: opts.InstanceID})

	if err := t.root.open(ctx); err != nil {
		if cerr := t.Close(); cerr != nil {
			t.logger.Debug("Teardown after failed build", "error", cerr)
		}
		return nil, errors.Wrap(err, "handler", "Build", "build tree for instance "+opts.InstanceID)
	}
	t.logger.Info("Handler tree built",
		"jobs", t.Count(LevelJob), "pes", t.Count(LevelPE),
		"operators", t.Count(LevelOperator), "ports", t.Count(LevelPort))
	return t, nil
}

// Close unregisters every listener of the tree. Failures are collected but
// never stop the teardown; connection failures are expected while a broken
// connection is torn down and are not reported. Close is idempotent.
func (t *Tree) Close() error {
	t.closeOnce.Do(func() {
		err := t.root.close()
		t.cancel()
		if err != nil && jmx.IsConnectionError(err) {
			t.logger.Debug("Listeners not removed from broken connection", "error", err)
			err = nil
		}
		if err != nil {
			t.logger.Warn("Handler tree closed with errors", "error", err)
		}
		t.closeErr = err
	})
	return t.closeErr
}

// Closed reports whether Close was called.
func (t *Tree) Closed() bool {
	return t.ctx.Err() != nil
}

// Count returns the number of live handlers at level l.
func (t *Tree) Count(l Level) int {
	if l < LevelInstance || l > LevelPort {
		return 0
	}
	return int(t.counts[l].Load())
}

func (t *Tree) newNode(parent *Node, l Level, name jmx.ObjectName, id identity) *Node {
	return &Node{
		tree:     t,
		parent:   parent,
		level:    l,
		name:     name,
		id:       id,
		children: make(map[string]*Node),
	}
}

func (t *Tree) opened(l Level) {
	n := t.counts[l].Add(1)
	if t.opts.Metrics != nil {
		t.opts.Metrics.HandlerNodes.WithLabelValues(t.opts.Source, l.String()).Set(float64(n))
	}
}

func (t *Tree) closed(l Level) {
	n := t.counts[l].Add(-1)
	if t.opts.Metrics != nil {
		t.opts.Metrics.HandlerNodes.WithLabelValues(t.opts.Source, l.String()).Set(float64(n))
	}
}

func (t *Tree) received(notificationType string) {
	if t.opts.Metrics != nil {
		t.opts.Metrics.NotificationsReceived.WithLabelValues(t.opts.Source, notificationType).Inc()
	}
}

// connectionError passes err on when it means the connection is gone and
// reports whether it did.
func (t *Tree) connectionError(err error) bool {
	if !jmx.IsConnectionError(err) {
		return false
	}
	if t.opts.OnConnectionError != nil {
		t.opts.OnConnectionError(err)
	}
	return true
}

func (t *Tree) emit(r emitter.Record) {
	if err := t.opts.Emitter.Emit(t.ctx, r); err != nil && !stderrors.Is(err, context.Canceled) {
		t.logger.Debug("Record dropped", "kind", r.Kind(), "error", err)
	}
}
