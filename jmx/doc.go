// Package jmx defines what the monitoring source needs from a management
// transport: object names in the streaming runtime's MBean taxonomy,
// notifications, attribute reads, and listener registration.
//
// The taxonomy is rooted at an instance:
//
//	com.ibm.streams.management:type=instance,instance=<id>
//	  type=job,instance=<id>,job=<jobId>
//	    type=pe,instance=<id>,job=<jobId>,pe=<peId>
//	      type=job.operator,...,operator=<name>
//	        type=job.operator.inputport,...,port=<index>
//	        type=job.operator.outputport,...,port=<index>
//
// Each MBean emits "<child>.added" and "<child>.removed" notifications for
// its direct children, carrying the child's object name. Log records are
// emitted by the instance MBean as "com.ibm.streams.management.log.application.<level>".
//
// Implementations are selected by the protocol of the service URL through a
// Connector. jmxtest provides an in-memory server; wsbridge talks to a
// JMX-to-websocket sidecar.
package jmx
