// Package wsbridge carries the management protocol over a websocket, for
// endpoints fronted by a JMX-to-websocket sidecar.
//
// Service URLs use the ws or wss protocol:
//
//	service:jmx:ws://host:9443/jmx
//	service:jmx:wss://host:9443/jmx
//
// Every client message is a request frame with a numeric id; the bridge
// answers with a frame carrying the same id and either a result or an error.
// Notifications are pushed as frames without an id:
//
//	-> {"id":1,"op":"connect","env":{"user":"u","password":"p"}}
//	<- {"id":1,"result":{"connectionId":"0c6f..."}}
//	-> {"id":2,"op":"addListener","name":"com.ibm.streams.management:type=instance,instance=i0","listener":"l-1"}
//	<- {"id":2}
//	<- {"event":{"listener":"l-1","notification":{"type":"com.ibm.streams.management.job.added",...}}}
//
// Connection events (jmx.remote.connection.*) are pushed without a listener.
//
// Dialer is the client side and registers for both protocols with Register.
// Handler is the bridge side: it serves websocket sessions against any
// jmx.Dialer, which is how the tests and the demo host expose the in-memory
// jmxtest server.
package wsbridge
