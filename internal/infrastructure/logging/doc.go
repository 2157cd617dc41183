// Package logging provides structured logging for the Gray Logic Hub.
//
// It wraps log/slog so every component logs with the same shape:
// JSON in production, text during development, and default service and
// version fields on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("cache refreshed", "entities", 412, "tier", "full")
//
// Never log the Home Assistant token or the JWT secret.
package logging
