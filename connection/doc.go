// Package connection owns the single live session between a monitoring
// source and its management endpoint.
//
// A Manager dials the configured endpoints from last to first and keeps the
// first that answers, so the preferred endpoint of a multi-endpoint service
// URL list goes last. When no URL is configured and the source monitors its
// own instance, the endpoint list and TLS protocols are discovered with
// streamtool.
//
// The Manager tracks the session through Disconnected, Connecting,
// Connected, and Broken, and publishes three per-source metrics under their
// runtime names: isConnected, nJMXConnectionAttempts, and
// nBrokenJMXConnections. A break is detected from the transport's
// jmx.remote.connection.closed and jmx.remote.connection.failed
// notifications or reported by callers through ReportFailure; each break
// increments nBrokenJMXConnections exactly once and runs the OnBroken
// callbacks. An orderly Close never counts as a break.
package connection
