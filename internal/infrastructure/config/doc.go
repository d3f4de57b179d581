// Package config handles loading and validating the Bulles portal configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with BULLES_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Signing secrets have no defaults; BULLES_JWT_SECRET and
//     BULLES_JWT_REFRESH_SECRET must be supplied and must differ
//   - The config file should have restricted permissions (0600)
//   - The admin password is best supplied via BULLES_ADMIN_PASSWORD
//
// Usage:
//
//	cfg, err := config.Load("configs/bulles.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Security.JWT.AccessTokenTTL)
package config
