// Package config handles loading and validating the ERP auth service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (JWT_*, LOCKOUT_*, ERPAUTH_*)
//   - Validation of required fields and secret strength
//   - Default value handling
//
// Security Considerations:
//   - Token secrets should be set via environment variables, never committed
//   - Access and refresh secrets must differ so leaking one does not expose the other
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.AccessTTL())
package config
