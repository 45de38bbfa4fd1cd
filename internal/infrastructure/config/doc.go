// Package config handles loading and validating RX380 logger configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (RX380_ prefix)
//   - Validation of required fields, collecting every problem at once
//   - Default values matching the RX380 factory serial settings
//
// Security Considerations:
//   - Database URLs, tokens and passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	fmt.Println(cfg.Meter.DeviceName)
package config
