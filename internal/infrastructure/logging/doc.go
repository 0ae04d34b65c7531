// Package logging provides structured logging for crowlink.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon and library.
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("panel connected", "mac", mac)
//	logger.Error("request failed", "error", err)
//
// # Security
//
// Never log account passwords or authentication tokens. The Crow
// Cloud credentials exist only in config and the credential store.
package logging
