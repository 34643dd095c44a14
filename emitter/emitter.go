package emitter

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/markheger/streamsx.metrics/metric"
)

// Emitter stamps, counts, and forwards records to one sink.
type Emitter struct {
	source  string
	sink    Sink
	clock   clock.Clock
	metrics *metric.Metrics
	logger  *slog.Logger

	emitted  atomic.Int64
	failed   atomic.Int64
	lastEmit atomic.Int64
}

// New creates an emitter for source. A nil sink drops records, which is how
// an unwired optional port behaves. metrics may be nil.
func New(source string, sink Sink, clk clock.Clock, metrics *metric.Metrics, logger *slog.Logger) *Emitter {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{source: source, sink: sink, clock: clk, metrics: metrics, logger: logger}
}

// Wired reports whether records go anywhere.
func (e *Emitter) Wired() bool { return e.sink != nil }

// Emit stamps r with the current time and hands it to the sink. Sink
// failures are logged and counted, then returned.
func (e *Emitter) Emit(ctx context.Context, r Record) error {
	if e.sink == nil {
		return nil
	}
	now := e.clock.Now()
	r = stamp(r, now)
	kind := string(r.Kind())
	if err := e.sink.Emit(ctx, r); err != nil {
		e.failed.Add(1)
		if e.metrics != nil {
			e.metrics.EmitErrors.WithLabelValues(e.source, kind).Inc()
		}
		e.logger.Warn("Record not emitted", "kind", kind, "error", err)
		return err
	}
	e.emitted.Add(1)
	e.lastEmit.Store(now.UnixNano())
	if e.metrics != nil {
		e.metrics.RecordsEmitted.WithLabelValues(e.source, kind).Inc()
	}
	return nil
}

// Stats returns the emitted and failed counts and the last emission time.
func (e *Emitter) Stats() (emitted, failed int64, last time.Time) {
	emitted, failed = e.emitted.Load(), e.failed.Load()
	if ns := e.lastEmit.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return emitted, failed, last
}
