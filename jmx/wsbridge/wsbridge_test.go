package wsbridge

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/jmx/jmxtest"
)

const backendURL = "service:jmx:jmxtest://backend:1"

type bridge struct {
	server    *jmxtest.Server
	handler   *Handler
	http      *httptest.Server
	url       string
	connector *jmx.Connector
}

func newBridge(t *testing.T, secure bool) *bridge {
	t.Helper()
	b := &bridge{server: jmxtest.NewServer("i0")}
	b.handler = NewHandler(b.server, backendURL, nil)
	dialer := &Dialer{WriteTimeout: time.Second}
	scheme := ProtocolWS
	if secure {
		b.http = httptest.NewTLSServer(b.handler)
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		scheme = ProtocolWSS
	} else {
		b.http = httptest.NewServer(b.handler)
	}
	t.Cleanup(b.http.Close)

	host := b.http.URL[strings.Index(b.http.URL, "://")+3:]
	b.url = "service:jmx:" + scheme + "://" + host + "/jmx"
	b.connector = jmx.NewConnector()
	Register(b.connector, dialer)
	return b
}

func (b *bridge) dial(t *testing.T, env jmx.Environment) jmx.Connection {
	t.Helper()
	conn, err := b.connector.Dial(context.Background(), b.url, env)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type recorder struct {
	mu    sync.Mutex
	notes []jmx.Notification
}

func (r *recorder) listen(n jmx.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Type
	}
	return out
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "service:jmx:ws://host:9443/jmx", want: "ws://host:9443/jmx"},
		{in: "service:jmx:wss://host:9443", want: "wss://host:9443/"},
		{in: "service:jmx:ws://[::1]:80/x", want: "ws://[::1]:80/x"},
		{in: "service:jmx:jmxmp://host:9443", wantErr: true},
		{in: "ws://host:9443", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := websocketURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBridge_QueriesAndAttributes(t *testing.T) {
	b := newBridge(t, false)
	job := b.server.AddJob("1", "app::Main", "running")
	pe := b.server.AddPE("1", "10")
	b.server.SetMetrics(pe, jmx.Metric{Name: "nTuplesProcessed", Kind: jmx.MetricCounter, Value: 42})

	conn := b.dial(t, jmx.Environment{User: "u", Password: "p", ProviderPackages: jmx.DefaultProviderPackages})
	assert.NotEmpty(t, conn.ID())
	assert.Equal(t, 1, b.server.Connections())
	assert.Equal(t, []string{backendURL}, b.server.Dialed())
	env := b.server.LastEnvironment()
	assert.Equal(t, "u", env.User)
	assert.Equal(t, jmx.DefaultProviderPackages, env.ProviderPackages)

	ctx := context.Background()
	names, err := conn.QueryNames(ctx, jmx.ChildPattern(jmx.InstanceName("i0"), jmx.TypeJob))
	require.NoError(t, err)
	assert.Equal(t, []jmx.ObjectName{job}, names)

	names, err = conn.QueryNames(ctx, jmx.ChildPattern(job, jmx.TypeOperator))
	require.NoError(t, err)
	assert.Empty(t, names)

	v, err := conn.GetAttribute(ctx, job, jmx.AttrName)
	require.NoError(t, err)
	name, err := jmx.DecodeString(v)
	require.NoError(t, err)
	assert.Equal(t, "app::Main", name)

	v, err = conn.GetAttribute(ctx, pe, jmx.MetricsAttribute)
	require.NoError(t, err)
	metrics, err := jmx.DecodeMetrics(v)
	require.NoError(t, err)
	assert.Equal(t, []jmx.Metric{{Name: "nTuplesProcessed", Kind: jmx.MetricCounter, Value: 42}}, metrics)

	_, err = conn.GetAttribute(ctx, jmx.JobName("i0", "99"), jmx.AttrName)
	assert.ErrorIs(t, err, jmx.ErrNotFound)
}

func TestBridge_Listeners(t *testing.T) {
	b := newBridge(t, false)
	conn := b.dial(t, jmx.Environment{})
	ctx := context.Background()

	rec := &recorder{}
	root := jmx.InstanceName("i0")
	id, err := conn.AddNotificationListener(ctx, root, rec.listen)
	require.NoError(t, err)
	assert.Equal(t, 1, b.server.ListenerCount(root))

	b.server.AddJob("1", "app::Main", "running")
	b.server.Log("error", "1", "10", "Src", "boom")
	require.Eventually(t, func() bool { return len(rec.types()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{jmx.NotifyJobAdded, jmx.NotifyLogPrefix + "error"}, rec.types())

	rec.mu.Lock()
	added := rec.notes[0]
	rec.mu.Unlock()
	assert.Equal(t, root, added.Source)
	assert.Equal(t, jmx.JobName("i0", "1"), added.Child)

	require.NoError(t, conn.RemoveNotificationListener(ctx, root, id))
	assert.Equal(t, 0, b.server.ListenerCount(root))
	assert.ErrorIs(t, conn.RemoveNotificationListener(ctx, root, id), jmx.ErrNotFound)

	_, err = conn.AddNotificationListener(ctx, jmx.JobName("i0", "42"), rec.listen)
	assert.ErrorIs(t, err, jmx.ErrNotFound)
}

func TestBridge_ListenerMayCallBack(t *testing.T) {
	b := newBridge(t, false)
	conn := b.dial(t, jmx.Environment{})
	ctx := context.Background()

	jobs := &recorder{}
	done := make(chan error, 1)
	_, err := conn.AddNotificationListener(ctx, jmx.InstanceName("i0"), func(n jmx.Notification) {
		if n.Type != jmx.NotifyJobAdded {
			return
		}
		_, err := conn.AddNotificationListener(ctx, n.Child, jobs.listen)
		done <- err
	})
	require.NoError(t, err)

	b.server.AddJob("1", "app::Main", "running")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("nested AddNotificationListener did not return")
	}

	b.server.SetJobStatus("1", "canceling")
	require.Eventually(t, func() bool { return len(jobs.types()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{jmx.NotifyJobStatusChanged}, jobs.types())
}

func TestBridge_Authentication(t *testing.T) {
	b := newBridge(t, false)
	b.server.RequireCredentials("admin", "secret")

	_, err := b.connector.Dial(context.Background(), b.url, jmx.Environment{User: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, jmx.ErrAuthentication)
	assert.Equal(t, 0, b.server.Connections())

	conn := b.dial(t, jmx.Environment{User: "admin", Password: "secret"})
	assert.NotEmpty(t, conn.ID())
}

func TestBridge_BrokenBackendReportsFailure(t *testing.T) {
	b := newBridge(t, false)
	conn := b.dial(t, jmx.Environment{})
	events := &recorder{}
	conn.AddConnectionListener(events.listen)

	b.server.LoseNotifications("buffer overflow")
	require.Eventually(t, func() bool { return len(events.types()) == 1 }, 2*time.Second, 5*time.Millisecond)

	b.server.Break("network down")
	require.Eventually(t, func() bool { return len(events.types()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{jmx.NotifyConnectionNotifLost, jmx.NotifyConnectionFailed}, events.types())

	events.mu.Lock()
	failed := events.notes[1]
	events.mu.Unlock()
	assert.Equal(t, "network down", failed.Message)
	assert.Equal(t, jmx.ObjectName(conn.ID()), failed.Source)

	_, err := conn.QueryNames(context.Background(), jmx.InstanceName("i0"))
	require.Error(t, err)
	assert.True(t, jmx.IsConnectionError(err))
	assert.Eventually(t, func() bool { return b.handler.Sessions() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestBridge_SessionIDStableUnderEvents(t *testing.T) {
	b := newBridge(t, false)
	conn := b.dial(t, jmx.Environment{})
	events := &recorder{}
	conn.AddConnectionListener(events.listen)
	id := conn.ID()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				assert.Equal(t, id, conn.ID())
			}
		}
	}()

	b.server.LoseNotifications("overflow")
	b.server.Break("reset")
	require.Eventually(t, func() bool { return len(events.types()) == 2 }, 2*time.Second, 5*time.Millisecond)
	close(stop)
	<-done

	events.mu.Lock()
	defer events.mu.Unlock()
	for _, n := range events.notes {
		assert.Equal(t, jmx.ObjectName(id), n.Source)
	}
}

func TestBridge_CloseIsSilent(t *testing.T) {
	b := newBridge(t, false)
	conn := b.dial(t, jmx.Environment{})
	events := &recorder{}
	conn.AddConnectionListener(events.listen)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return b.server.Connections() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, events.types())

	_, err := conn.QueryNames(context.Background(), jmx.InstanceName("i0"))
	assert.ErrorIs(t, err, jmx.ErrClosed)
}

func TestBridge_CanceledCall(t *testing.T) {
	b := newBridge(t, false)
	conn := b.dial(t, jmx.Environment{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.QueryNames(ctx, jmx.InstanceName("i0"))
	assert.ErrorIs(t, err, context.Canceled)

	names, err := conn.QueryNames(context.Background(), jmx.InstanceName("i0"))
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestBridge_TLS(t *testing.T) {
	b := newBridge(t, true)

	conn := b.dial(t, jmx.Environment{TLSProtocols: []string{"TLSv1.2", "TLSv1.3"}})
	names, err := conn.QueryNames(context.Background(), jmx.InstanceName("i0"))
	require.NoError(t, err)
	assert.Len(t, names, 1)

	_, err = b.connector.Dial(context.Background(), b.url, jmx.Environment{TLSProtocols: []string{"SSLv3"}})
	require.Error(t, err)
}

func TestBridge_RequestsBeforeConnect(t *testing.T) {
	b := newBridge(t, false)
	target, err := websocketURL(b.url)
	require.NoError(t, err)

	// A session that skips the connect handshake.
	ws, _, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(t, err)
	conn := newConn(ws, b.url, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer conn.Close()

	_, err = conn.QueryNames(context.Background(), jmx.InstanceName("i0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), codeBadRequest)
}
