// Package config loads and validates the gateway configuration.
//
// Values come from built-in defaults, then a YAML file, then SMARTHOME_*
// environment variables. Validate aggregates every problem it finds into a
// single error so an operator can fix the file in one pass.
//
// Credentials (MQTT password, Redis URL with auth, InfluxDB token) should be
// supplied through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Broker.Type)
package config
