// Package natsclient manages the NATS connection of a monitoring host.
//
// The connection carries two things: emitted monitoring records, published
// as JSON to per-source subjects, and application configurations, stored as
// JSON objects in a JetStream key/value bucket keyed by configuration name.
//
// Connection attempts pass through a circuit breaker: after a threshold of
// consecutive failures Connect returns ErrCircuitOpen until the backoff
// elapses, and the backoff doubles up to a maximum on each further round.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithName("streamsmon"))
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close(ctx)
//
//	bucket, err := client.KeyValueBucket(ctx, "streams_app_config", true)
//	store := client.NewKVStore(bucket)
//
// TestClient starts a NATS server with testcontainers for integration tests
// (build tag "integration").
package natsclient
