// Package config handles loading and validating Gray Logic Hub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The Home Assistant token and JWT secret should come from
//     GRAYLOGIC_HA_TOKEN and GRAYLOGIC_JWT_SECRET, not the file
//   - The config file should have restricted permissions (0600)
//
// Resource profiles:
//
// Two memory profiles are carried, normal and constrained. Which one
// applies is decided at startup by resources.constrained, or by host
// detection when that is unset. The constrained profile also selects
// cache.constrained_interval and a longer default max age.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval := cfg.RefreshInterval(constrained)
package config
