// Package config provides configuration loading for semlink.
//
// # Core Components
//
// Config: the complete configuration with three sections. Broker selects the
// transport (mqtt or nats) and the reconnect timings, Store selects the key-value
// backend (redis or jetstream) and sizes its pool, Metrics controls the HTTP endpoint.
//
// SafeConfig: thread-safe wrapper using RWMutex and deep cloning to prevent
// concurrent access issues and accidental mutations.
//
// Loader: loads configuration with layer merging (base + overrides) and
// environment variable overrides for flexible deployment scenarios.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Duration fields accept Go duration strings ("1500ms", "30s") or integer nanoseconds.
//
// # Environment Variable Overrides
//
//	export SEMLINK_BROKER_URL="tcp://mqtt.internal:1883"
//	export SEMLINK_BROKER_SUBSCRIPTIONS="plant/+/temperature,alarms/#"
//	export SEMLINK_STORE_BACKEND="redis"
//	export SEMLINK_STORE_URL="redis://cache:6379/0"
//
// Also recognised: SEMLINK_BROKER_TRANSPORT, _CLIENT_ID, _USERNAME, _PASSWORD, _TOKEN,
// SEMLINK_STORE_BUCKET, SEMLINK_METRICS_PORT and SEMLINK_METRICS_PATH.
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics:
//
//	base.json:
//	  {"broker": {"url": "tcp://localhost:1883", "qos": 0}}
//
//	production.yaml:
//	  broker:
//	    url: tcp://mqtt.internal:1883
//
//	Result:
//	  {"broker": {"url": "tcp://mqtt.internal:1883", "qos": 0}}
//
// # Security
//
// The package includes security validation:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - JSON depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
//
// Config.String and Config.Redacted mask passwords and tokens for logging.
package config
