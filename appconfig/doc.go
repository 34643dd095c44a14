// Package appconfig resolves the effective configuration of a monitoring
// source from three layers: built-in defaults, the source's own parameters,
// and an optional named application configuration.
//
// An application configuration is a set of string properties kept outside
// the source, typically in a NATS JetStream key-value bucket, so credentials
// and filter documents can be changed without redeploying. Its recognized
// keys are connectionURL, user, password, sslOption, filterDocument, and
// instanceId; any value present there wins over the parameter of the same
// name. Application configurations are only consulted in distributed mode.
//
// The Resolver also remembers the filter document it last took from the
// application configuration so the source can detect when it changes:
//
//	r := appconfig.NewResolver(params, host, store, logger)
//	cfg, err := r.Resolve(ctx)
//	...
//	if doc, changed, err := r.Drifted(ctx); err == nil && changed {
//		// recompile doc, then r.Accept(doc)
//	}
package appconfig
