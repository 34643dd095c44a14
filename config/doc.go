// Package config loads the host configuration of the streamsmon binary.
//
// A Loader merges layers over built-in defaults: each layer is a JSON or
// YAML file, and maps merge key by key so a layer only needs the fields it
// changes. Environment variables prefixed STREAMSMON_ are applied last.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.json") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Duration fields accept strings such as "30s" or "14d" in files; this
// includes reconcile_interval and poll_interval inside component configs.
//
// A minimal configuration hosting one job status source:
//
//	version: 1.0.0
//	platform:
//	  instance_id: StreamsInstance
//	  domain_id: StreamsDomain
//	nats:
//	  urls: [nats://localhost:4222]
//	  app_config_bucket: streams-appconfig
//	components:
//	  jobs:
//	    factory: jmx-source
//	    enabled: true
//	    config:
//	      role: job_status
//	      connection_url: service:jmx:wss://streams:9443/jmx
//	      user: streamsadmin
//	      password: secret
//	      subject: streams.jobs
//	      reconcile_interval: 30s
//
// Recognized environment overrides: INSTANCE_ID, DOMAIN_ID, STANDALONE,
// NATS_URLS (comma separated), NATS_USERNAME, NATS_PASSWORD, NATS_TOKEN,
// APP_CONFIG_BUCKET, and METRICS_PORT.
package config
