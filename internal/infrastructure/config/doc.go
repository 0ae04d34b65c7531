// Package config provides configuration management for crowlink.
//
// Configuration is loaded from a YAML file, merged over built-in
// defaults, overridden by CROWLINK_* environment variables, and
// validated before use.
//
// # Structure
//
//	crow:           # Crow Cloud API (credentials, timeouts, backoff)
//	bridge:         # panels to mirror, measurement poll interval
//	mqtt:           # broker connection for the event mirror
//	influxdb:       # measurement recorder sink
//	database:       # SQLite event journal
//	logging:        # level, format, output
//
// # Environment Overrides
//
// Secrets should come from the environment rather than the YAML file:
//
//	CROWLINK_CROW_EMAIL / CROWLINK_CROW_PASSWORD
//	CROWLINK_MQTT_USERNAME / CROWLINK_MQTT_PASSWORD
//	CROWLINK_INFLUXDB_TOKEN
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
