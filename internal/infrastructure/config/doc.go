// Package config handles loading and validating the sensor daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and device addresses
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/sensord.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, name := range cfg.Sensors.DeviceNames() {
//	    fmt.Println(name, cfg.Sensors.Devices[name])
//	}
package config
