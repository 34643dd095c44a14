package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/metric"
)

func TestEmitter_StampsAndCounts(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	metrics := metric.NewMetrics()
	sink := &CollectingSink{}
	e := New("jobs", sink, clk, metrics, nil)

	require.NoError(t, e.Emit(context.Background(), JobStatus{InstanceID: "i0", JobID: "1", JobName: "A", Status: "running"}))
	clk.Add(time.Second)
	require.NoError(t, e.Emit(context.Background(), JobStatus{InstanceID: "i0", JobID: "1", JobName: "A", Status: "canceling"}))

	got := Collected[JobStatus](sink)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), got[0].Timestamp)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), got[1].Timestamp)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RecordsEmitted.WithLabelValues("jobs", "jobStatus")))

	emitted, failed, last := e.Stats()
	assert.Equal(t, int64(2), emitted)
	assert.Zero(t, failed)
	assert.True(t, last.Equal(clk.Now()))
}

func TestEmitter_SinkFailure(t *testing.T) {
	metrics := metric.NewMetrics()
	boom := fmt.Errorf("sink down")
	e := New("logs", SinkFunc(func(context.Context, Record) error { return boom }), clock.NewMock(), metrics, nil)

	err := e.Emit(context.Background(), Log{Level: "error"})
	assert.ErrorIs(t, err, boom)
	_, failed, last := e.Stats()
	assert.Equal(t, int64(1), failed)
	assert.True(t, last.IsZero())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EmitErrors.WithLabelValues("logs", "log")))
}

func TestEmitter_UnwiredDrops(t *testing.T) {
	e := New("jobs", nil, nil, nil, nil)
	assert.False(t, e.Wired())
	assert.NoError(t, e.Emit(context.Background(), ConnectionNotification{Type: "jmx.remote.connection.opened"}))
	emitted, _, _ := e.Stats()
	assert.Zero(t, emitted)
}

type publishRecorder struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *publishRecorder) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSink_Envelope(t *testing.T) {
	pub := &publishRecorder{}
	sink := NewNATSSink(pub, "streams.metrics", "metrics")
	port := 2
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Emit(context.Background(), Metric{
		InstanceID: "i0", JobID: "1", JobName: "A", PEID: "3", Operator: "op",
		MetricKind: MetricKindOutputPort, Port: &port, MetricType: "counter",
		MetricName: "nTuplesSubmitted", Value: 42, Timestamp: ts,
	}))
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "streams.metrics", pub.subjects[0])

	var env struct {
		ID        string          `json:"id"`
		Kind      string          `json:"kind"`
		Source    string          `json:"source"`
		Timestamp time.Time       `json:"timestamp"`
		Record    json.RawMessage `json:"record"`
	}
	require.NoError(t, json.Unmarshal(pub.payloads[0], &env))
	assert.Len(t, env.ID, 36)
	assert.Equal(t, "metric", env.Kind)
	assert.Equal(t, "metrics", env.Source)
	assert.True(t, env.Timestamp.Equal(ts))
	assert.JSONEq(t, `{
		"instanceId":"i0","jobId":"1","jobName":"A","peId":"3","operator":"op",
		"metricKind":"outputPort","port":2,"metricType":"counter",
		"metricName":"nTuplesSubmitted","value":42,"ts":"2024-03-01T12:00:00Z"
	}`, string(env.Record))
}

func TestNATSSink_PublishFailureIsTransient(t *testing.T) {
	sink := NewNATSSink(&publishRecorder{err: errors.ErrNoConnection}, "s", "jobs")
	err := sink.Emit(context.Background(), JobStatus{})
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(1)
	require.NoError(t, sink.Emit(context.Background(), Log{Message: "first"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Emit(ctx, Log{Message: "blocked"}), context.Canceled)
	assert.Equal(t, "first", (<-sink.C).(Log).Message)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)), slog.LevelInfo)
	require.NoError(t, sink.Emit(context.Background(), Log{InstanceID: "i0", Level: "error", Message: "disk full"}))
	assert.Contains(t, buf.String(), `"kind":"log"`)
	assert.Contains(t, buf.String(), `"message":"disk full"`)
}

func TestCollectingSink_Reset(t *testing.T) {
	sink := &CollectingSink{}
	_ = sink.Emit(context.Background(), Log{})
	_ = sink.Emit(context.Background(), JobStatus{})
	assert.Equal(t, 2, sink.Len())
	assert.Len(t, Collected[Log](sink), 1)
	sink.Reset()
	assert.Zero(t, sink.Len())
}
