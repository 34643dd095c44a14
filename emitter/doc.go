// Package emitter defines the records a monitoring source produces and the
// sinks that receive them.
//
// Output port 0 of a source carries its role's records (JobStatus, Log,
// Metric, or Notification); the optional port 1 carries
// ConnectionNotification records. An Emitter stamps each record with the
// time of emission from its clock, counts it, and hands it to a Sink. Sinks
// do not buffer: NATSSink publishes a JSON envelope per record, LogSink
// writes it to a structured logger, and ChannelSink and CollectingSink serve
// tests and embedding programs.
package emitter
