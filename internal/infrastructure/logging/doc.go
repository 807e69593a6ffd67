// Package logging provides structured logging for the smart home gateway.
//
// It wraps log/slog so every component shares one handler configuration:
// JSON in production, text for local development, and default service and
// version fields on every entry.
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
//	logger.Component("websocket").Info("device connected", "device_id", id)
//
// Never log broker credentials or InfluxDB tokens.
package logging
