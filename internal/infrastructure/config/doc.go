// Package config loads and validates the device sync core configuration.
//
// Values come from three layers, later layers winning:
//   - built-in defaults
//   - a YAML file
//   - DEVICESYNC_* environment variables
//
// Sensitive values (MQTT password, JWT secret, InfluxDB token) should be set
// through the environment rather than committed to the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.BrokerURL())
package config
