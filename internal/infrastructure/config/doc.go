// Package config handles loading and validating Aduro bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The MQTT password, appliance PIN and InfluxDB token should be set via
//     environment variables rather than committed to the config file
//   - MQTTAuthConfig redacts its password in String() and MarshalJSON()
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Discovery.Prefix)
//
// An empty path loads the built-in defaults plus environment overrides, which
// is how the bridge runs inside a container with no mounted config file.
package config
