// Package logging provides structured logging for IceTray.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("icecube built", "name", dev.Name(), "signals", dev.CountAll())
//	logger.Error("publish failed", "error", err)
package logging
