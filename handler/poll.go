package handler

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/markheger/streamsx.metrics/emitter"
	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/filter"
	"github.com/markheger/streamsx.metrics/jmx"
)

// Poll reads the metrics of every PE, operator, and port handler and emits
// one Metric record per selected metric. The metric set is read afresh each
// time, so added and removed metrics need no bookkeeping.
//
// A connection failure stops the poll and is passed to OnConnectionError;
// other failures are collected and the poll goes on.
func (t *Tree) Poll(ctx context.Context) error {
	if t.Closed() {
		return nil
	}
	if t.opts.Metrics != nil {
		timer := prometheus.NewTimer(t.opts.Metrics.PollDuration.WithLabelValues(t.opts.Source))
		defer timer.ObserveDuration()
	}

	var errs error
	for _, n := range t.root.pollable() {
		if err := n.poll(ctx); err != nil {
			if t.connectionError(err) {
				return errors.WrapTransient(err, "handler", "Poll", "read metrics of "+string(n.name))
			}
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		t.logger.Warn("Metric poll incomplete", "error", errs)
	}
	return errs
}

// pollable returns the handler and its descendants that carry metrics, in
// a stable order.
func (n *Node) pollable() []*Node {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	children := make([]*Node, 0, len(keys))
	for _, k := range keys {
		children = append(children, n.children[k])
	}
	n.mu.Unlock()

	var out []*Node
	if n.level >= LevelPE {
		out = append(out, n)
	}
	for _, c := range children {
		out = append(out, c.pollable()...)
	}
	return out
}

func (n *Node) poll(ctx context.Context) error {
	t := n.tree
	v, err := t.opts.Conn.GetAttribute(ctx, n.name, jmx.MetricsAttribute)
	if err != nil {
		if stderrors.Is(err, jmx.ErrNotFound) {
			return nil
		}
		return err
	}
	metrics, err := jmx.DecodeMetrics(v)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	for _, m := range metrics {
		if !n.metricSelected(m.Name) {
			continue
		}
		t.emit(n.metricRecord(m))
	}
	return nil
}

func (n *Node) metricRecord(m jmx.Metric) emitter.Metric {
	r := emitter.Metric{
		InstanceID: n.id.instanceID,
		JobID:      n.id.jobID,
		JobName:    n.id.jobName,
		PEID:       n.id.peID,
		Operator:   n.id.operator,
		MetricType: m.Kind,
		MetricName: m.Name,
		Value:      m.Value,
	}
	switch n.level {
	case LevelPE:
		r.MetricKind = emitter.MetricKindPE
	case LevelOperator:
		r.MetricKind = emitter.MetricKindOperator
	case LevelPort:
		r.MetricKind = emitter.MetricKindInputPort
		if n.id.portKind == filter.OutputPort {
			r.MetricKind = emitter.MetricKindOutputPort
		}
		if i := n.id.portNumber(); i >= 0 {
			r.Port = &i
		}
	}
	return r
}
