// Package health reports the health of monitoring sources and of the host
// that runs them.
//
// A source is healthy while its management connection is live and its
// handler tree is built, degraded while it waits to reconnect after a broken
// connection, and unhealthy when initialization failed or the connection is
// broken without a reconnect policy. The host aggregates its sources with a
// Monitor and serves the result through the metrics server's /health
// endpoint. Messages are stripped of endpoint URLs and credentials.
package health
