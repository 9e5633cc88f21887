// Package config handles loading and validating IceTray configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ICETRAY_SECTION_KEY)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/icetray.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Build.OutputDir)
package config
