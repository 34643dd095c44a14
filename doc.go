// Package streamsmon ingests monitoring data from a stream-processing
// runtime's management endpoint and publishes it as normalized records.
//
// A source connects to the runtime's MBean tree (instance, jobs, processing
// elements, operators, ports) over a JMX-style connection, subscribes to
// lifecycle notifications, applies a declarative filter document to the
// hierarchy, and emits records to NATS.
//
// # Architecture
//
//	┌──────────────────────────────────────┐
//	│        cmd/streamsmon (host)         │  flags, config layers, NATS,
//	│                                      │  metrics server, signals
//	└──────────────────────────────────────┘
//	           ↓ creates via componentregistry
//	┌──────────────────────────────────────┐
//	│     source (one per role)            │  Initialize / Start / Stop,
//	│  JobStatus · Log · Metrics · Notif.  │  reconciliation, drift
//	└──────────────────────────────────────┘
//	      ↓ resolves        ↓ connects          ↓ builds
//	  appconfig         connection            handler tree
//	  + filter          (failover,            (instance → job → pe →
//	                    discovery)             operator → port, logs)
//	                        ↓                       ↓ emits
//	                       jmx  ←── wsbridge    emitter → NATS subject
//
// # Packages
//
//   - filter: filter documents (JSON, comments tolerated) compiled to
//     anchored regular expressions, one level per MBean type.
//   - appconfig: parameter resolution with application configurations held in
//     a NATS KV bucket; filter drift detection.
//   - connection: connect with reverse-order failover, streamtool discovery,
//     broken-connection tracking and the isConnected / attempt / broken
//     counters.
//   - handler: the handler tree mirroring the filtered MBean hierarchy, plus
//     the metric poller.
//   - emitter: record types and sinks (NATS, log, channel).
//   - source: the lifecycle component tying the above together per role.
//   - jmx: the management connection contract; jmx/jmxtest is an in-memory
//     server, jmx/wsbridge a websocket transport and relay.
//
// Infrastructure packages (component, errors, health, metric, natsclient,
// config, pkg/retry, pkg/tlsutil) carry the component lifecycle, classified
// errors, Prometheus metrics, and NATS connectivity.
//
// # Running
//
//	STREAMS_INSTALL=/opt/streams ./bin/streamsmon --config configs/streamsmon.yaml
//
// Without a runtime at hand, --demo serves a simulated instance in process:
//
//	./bin/streamsmon --demo --config configs/demo.yaml --log-level debug
package streamsmon
