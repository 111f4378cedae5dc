// Package logging provides structured logging for RemoteLink Core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text in development, with service and version fields on
// every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting", "port", cfg.API.Port)
//
//	registry.SetLogger(logger.With("component", "registry"))
//
// Never log pairing PINs or bearer tokens.
package logging
