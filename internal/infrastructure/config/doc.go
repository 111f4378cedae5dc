// Package config handles loading and validating RemoteLink Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files over built-in defaults
//   - Overriding with REMOTELINK_* environment variables
//   - Validation that reports every problem at once
//
// Security Considerations:
//   - Secrets (MQTT password, InfluxDB token, JWT secret) belong in the
//     environment, not the YAML file
//   - The default shared pairing secret "1234" is for development only
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Connection.Transport)
package config
