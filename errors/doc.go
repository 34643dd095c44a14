// Package errors classifies failures of the monitoring source.
//
// # Classes
//
//   - Transient: lost connections, timeouts, unavailable stores (retry)
//   - Invalid: malformed input that a caller can correct (do not retry)
//   - Fatal: startup misconfiguration; the source aborts and reports to the host
//
// # Startup kinds
//
// Initialization fails with one of the sentinels below, always wrapped with
// the component and operation that observed it:
//
//	ErrMissingConfig   required parameter absent (message names the parameter)
//	ErrEnvironment     installation environment variable absent
//	ErrFilterParse     filter document malformed or uses unknown keys
//	ErrFilterMismatch  filter document does not select the target instance
//	ErrDiscovery       administrative CLI returned an unusable endpoint
//	ErrConnect         every endpoint in the connection list failed
//
// Use errors.Is against the sentinel, and IsFatal/IsTransient to decide
// between aborting and retrying:
//
//	if err := src.Initialize(); err != nil {
//	    if errors.IsFatal(err) {
//	        return err
//	    }
//	}
//
// Wrap adds "component.method: action failed:" context without changing the
// class; WrapTransient, WrapInvalid and WrapFatal attach an explicit class.
package errors
