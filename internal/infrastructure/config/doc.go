// Package config handles loading and validating tgpanel configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TGPANEL_* environment variables
//   - Validation of required fields
//
// Secrets (bot token, JWT secret, MQTT password, firmware credentials)
// should come from the environment rather than the file. The config file
// should have restricted permissions (0600).
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Devices.PairTimeout)
package config
