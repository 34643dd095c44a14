package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/jmx/jmxtest"
	"github.com/markheger/streamsx.metrics/jmx/wsbridge"
)

// Demo endpoint served in process when --demo is set.
const (
	demoProtocol = "demo"
	demoURL      = "service:jmx:" + demoProtocol + "://local"
)

// demoInstance simulates a running instance: a long-lived pipeline job
// whose metrics grow, periodic application logs, and a short-lived job
// that is submitted and canceled in turns.
type demoInstance struct {
	server   *jmxtest.Server
	interval time.Duration
	logger   *slog.Logger

	bridge *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
	tick   int64
}

// newDemoInstance builds the demo topology and registers it on connector.
func newDemoInstance(instanceID string, interval time.Duration, connector *jmx.Connector, logger *slog.Logger) *demoInstance {
	if instanceID == "" {
		instanceID = "demo"
	}
	d := &demoInstance{
		server:   jmxtest.NewServer(instanceID),
		interval: interval,
		logger:   logger.With("component", "demo"),
	}
	d.server.AddJob("1", "demo::Pipeline", "running")
	d.server.AddPE("1", "1")
	for _, op := range []string{"Source", "Filter", "Sink"} {
		d.server.AddOperator("1", "1", op)
	}
	d.server.AddOutputPort("1", "1", "Source", 0)
	d.server.AddInputPort("1", "1", "Filter", 0)
	d.server.AddOutputPort("1", "1", "Filter", 0)
	d.server.AddInputPort("1", "1", "Sink", 0)
	d.updateMetrics()

	connector.Register(demoProtocol, d.server)
	return d
}

// serveBridge exposes the demo instance to websocket clients on addr at /jmx.
func (d *demoInstance) serveBridge(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/jmx", wsbridge.NewHandler(d.server, demoURL, d.logger))
	d.bridge = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := d.bridge.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			d.logger.Error("Demo bridge stopped", "error", err)
		}
	}()
	d.logger.Info("Demo bridge listening", "url", "service:jmx:ws://"+ln.Addr().String()+"/jmx")
	return nil
}

func (d *demoInstance) start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.step()
			}
		}
	}()
}

func (d *demoInstance) stop(ctx context.Context) {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	if d.bridge != nil {
		if err := d.bridge.Shutdown(ctx); err != nil {
			d.logger.Warn("Demo bridge shutdown failed", "error", err)
		}
	}
}

func (d *demoInstance) step() {
	d.tick++
	d.updateMetrics()
	d.server.Log("info", "1", "1", "Filter", "processed batch "+strconv.FormatInt(d.tick, 10))

	switch d.tick % 4 {
	case 1:
		d.server.AddJob("2", "demo::Batch", "submitted")
		d.server.AddPE("2", "2")
		d.server.AddOperator("2", "2", "Worker")
	case 2:
		d.server.SetJobStatus("2", "running")
	case 3:
		d.server.SetJobStatus("2", "canceling")
		d.server.Log("warn", "2", "2", "Worker", "job canceled by demo")
	case 0:
		d.server.RemoveJob("2")
	}
}

func (d *demoInstance) updateMetrics() {
	n := d.tick * 100
	d.server.SetMetrics(jmx.PEName(d.server.InstanceID(), "1", "1"),
		jmx.Metric{Name: "nTuplesProcessed", Kind: jmx.MetricCounter, Value: n},
		jmx.Metric{Name: "nCpuMilliseconds", Kind: jmx.MetricTime, Value: d.tick * 7},
	)
	for _, op := range []string{"Source", "Filter", "Sink"} {
		d.server.SetMetrics(jmx.OperatorName(d.server.InstanceID(), "1", "1", op),
			jmx.Metric{Name: "nTuplesSubmitted", Kind: jmx.MetricCounter, Value: n},
			jmx.Metric{Name: "queueSize", Kind: jmx.MetricGauge, Value: d.tick % 10},
		)
	}
}
