package emitter

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/natsclient"
)

// Sink receives records. Emit must not retain r beyond the call unless it
// copies it.
type Sink interface {
	Emit(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Record) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, r Record) error { return f(ctx, r) }

// Envelope is the JSON document NATSSink publishes.
type Envelope struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Record    Record    `json:"record"`
}

// Publisher is the part of natsclient.Client NATSSink needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

var _ Publisher = (*natsclient.Client)(nil)

// NATSSink publishes each record as an Envelope on one subject.
type NATSSink struct {
	publisher Publisher
	subject   string
	source    string
}

// NewNATSSink publishes on subject, naming source in every envelope.
func NewNATSSink(publisher Publisher, subject, source string) *NATSSink {
	return &NATSSink{publisher: publisher, subject: subject, source: source}
}

// Subject returns the subject records are published on.
func (s *NATSSink) Subject() string { return s.subject }

// Emit implements Sink.
func (s *NATSSink) Emit(ctx context.Context, r Record) error {
	env := Envelope{
		ID:        uuid.NewString(),
		Kind:      r.Kind(),
		Source:    s.source,
		Timestamp: timestampOf(r),
		Record:    r,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.WrapInvalid(err, "NATSSink", "Emit", "marshal envelope")
	}
	if err := s.publisher.Publish(ctx, s.subject, data); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Emit", "publish to "+s.subject)
	}
	return nil
}

func timestampOf(r Record) time.Time {
	switch v := r.(type) {
	case JobStatus:
		return v.Timestamp
	case Log:
		return v.Timestamp
	case Metric:
		return v.Timestamp
	case Notification:
		return v.Timestamp
	case ConnectionNotification:
		return v.Timestamp
	}
	return time.Time{}
}

// LogSink writes records to a structured logger.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink logs at level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, r Record) error {
	s.logger.Log(ctx, s.level, "record", "kind", r.Kind(), "record", r)
	return nil
}

// ChannelSink sends records on a channel, blocking until the receiver takes
// them or ctx is done.
type ChannelSink struct {
	C chan Record
}

// NewChannelSink creates a sink with a channel of the given capacity.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{C: make(chan Record, capacity)}
}

// Emit implements Sink.
func (s *ChannelSink) Emit(ctx context.Context, r Record) error {
	select {
	case s.C <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CollectingSink keeps every record in memory.
type CollectingSink struct {
	mu      sync.Mutex
	records []Record
}

// Emit implements Sink.
func (s *CollectingSink) Emit(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// Records returns a copy of the collected records.
func (s *CollectingSink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Len returns the number of collected records.
func (s *CollectingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Reset drops the collected records.
func (s *CollectingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// Collected returns the records of type T collected by s.
func Collected[T Record](s *CollectingSink) []T {
	var out []T
	for _, r := range s.Records() {
		if v, ok := r.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
