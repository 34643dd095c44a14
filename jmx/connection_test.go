package jmx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceURL(t *testing.T) {
	su, err := ParseServiceURL(" service:jmx:jmxmp://streamshost:9975 ")
	require.NoError(t, err)
	assert.Equal(t, "jmxmp", su.Protocol)
	assert.Equal(t, "streamshost", su.Host)
	assert.Equal(t, "9975", su.Port)

	su, err = ParseServiceURL("service:jmx:wss://bridge.example.com:8443/jmx")
	require.NoError(t, err)
	assert.Equal(t, "wss", su.Protocol)
	assert.Equal(t, "/jmx", su.Path)

	_, err = ParseServiceURL("jmxmp://host:1")
	assert.ErrorContains(t, err, ServiceURLPrefix)

	_, err = ParseServiceURL("service:jmx:nohost")
	assert.Error(t, err)
}

func TestSplitServiceURLs(t *testing.T) {
	assert.Equal(t,
		[]string{"service:jmx:jmxmp://a:1", "service:jmx:jmxmp://b:2"},
		SplitServiceURLs("service:jmx:jmxmp://a:1, ,service:jmx:jmxmp://b:2,"))
	assert.Empty(t, SplitServiceURLs(""))
}

func TestEnvironment_Map(t *testing.T) {
	env := Environment{
		User: "admin", Password: "secret",
		ProviderPackages: DefaultProviderPackages,
		TLSProtocols:     ParseTLSProtocols("TLSv1.2, TLSv1.3"),
	}
	m := env.Map()

	assert.Equal(t, []string{"admin", "secret"}, m[EnvCredentials])
	assert.Equal(t, "com.ibm.streams.management", m[EnvProviderPackages])
	assert.Equal(t, "TLSv1.2,TLSv1.3", m[EnvTLSProtocols])

	_, ok := Environment{User: "u"}.Map()[EnvTLSProtocols]
	assert.False(t, ok)
}

func TestConnector_DispatchesByProtocol(t *testing.T) {
	c := NewConnector()
	var got string
	c.Register("jmxmp", DialerFunc(func(_ context.Context, url string, _ Environment) (Connection, error) {
		got = url
		return nil, nil
	}))

	_, err := c.Dial(context.Background(), "service:jmx:jmxmp://h:1", Environment{})
	require.NoError(t, err)
	assert.Equal(t, "service:jmx:jmxmp://h:1", got)
	assert.Equal(t, []string{"jmxmp"}, c.Protocols())

	_, err = c.Dial(context.Background(), "service:jmx:rmi://h:1", Environment{})
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)

	_, err = c.Dial(context.Background(), "http://h:1", Environment{})
	assert.Error(t, err)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.True(t, IsConnectionError(fmt.Errorf("read: %w", ErrClosed)))
	assert.True(t, IsConnectionError(&net.OpError{Op: "read", Err: errors.New("reset")}))
	assert.False(t, IsConnectionError(ErrNotFound))
}

func TestDecodeMetrics(t *testing.T) {
	direct := []Metric{{Name: "nTuplesProcessed", Kind: MetricCounter, Value: 4}}
	got, err := DecodeMetrics(direct)
	require.NoError(t, err)
	assert.Equal(t, direct, got)

	jsonShaped := []any{map[string]any{"name": "queueSize", "kind": "gauge", "value": float64(12)}}
	got, err = DecodeMetrics(jsonShaped)
	require.NoError(t, err)
	assert.Equal(t, []Metric{{Name: "queueSize", Kind: MetricGauge, Value: 12}}, got)

	got, err = DecodeMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = DecodeMetrics("not metrics")
	assert.Error(t, err)
}

func TestDecodeString(t *testing.T) {
	s, err := DecodeString("healthy")
	require.NoError(t, err)
	assert.Equal(t, "healthy", s)

	_, err = DecodeString(42)
	assert.Error(t, err)
}
