package jmx

import (
	"encoding/json"
	"fmt"
)

// MetricsAttribute is the attribute holding the metric list of a PE,
// operator, or port MBean.
const MetricsAttribute = "Metrics"

// Attribute names of the job MBean.
const (
	AttrName   = "Name"
	AttrStatus = "Status"
)

// Metric kinds reported by the runtime.
const (
	MetricCounter = "counter"
	MetricGauge   = "gauge"
	MetricTime    = "time"
)

// Metric is one numeric metric read from an MBean.
type Metric struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

// DecodeMetrics converts an attribute value into metrics. It accepts a
// []Metric from in-process transports and any JSON-shaped value.
func DecodeMetrics(v any) ([]Metric, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case []Metric:
		return m, nil
	case json.RawMessage:
		var out []Metric
		if err := json.Unmarshal(m, &out); err != nil {
			return nil, fmt.Errorf("jmx: decode metrics: %w", err)
		}
		return out, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("jmx: decode metrics: %w", err)
		}
		var out []Metric
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("jmx: decode metrics: %w", err)
		}
		return out, nil
	}
}

// DecodeString converts an attribute value into a string.
func DecodeString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.RawMessage:
		var out string
		if err := json.Unmarshal(s, &out); err != nil {
			return "", fmt.Errorf("jmx: decode string: %w", err)
		}
		return out, nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return "", fmt.Errorf("jmx: attribute of type %T is not a string", v)
	}
}
