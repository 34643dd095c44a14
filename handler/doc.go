// Package handler mirrors the management hierarchy of one instance as a
// tree of handlers: Instance, Job, ProcessingElement, Operator, and the
// operator's input and output ports.
//
// Each handler listens on its own MBean for child-added and child-removed
// notifications, enumerates the current children, and builds a sub-handler
// for each child the filter selects. The child's identity is the key of its
// parent's child map, so an add for a known identity is a no-op, and a
// removal closes the child's whole subtree. All work on one handler,
// construction included, is serialized by the handler's mutex; a removal
// followed by an add of the same identity therefore closes before it
// creates.
//
// Closing a handler unregisters its listener, marks it closed, and then
// closes every descendant even when some of them fail. Callbacks that reach
// a closed handler do nothing.
//
// What a tree emits depends on its Options: job status records from job
// handlers, log records from the instance handler, metric records from Poll,
// and notification records for every lifecycle event of a selected MBean.
package handler
