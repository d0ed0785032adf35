// Package logging provides structured logging for tgpanel.
//
// It wraps log/slog so every record carries the service name and build
// version. JSON is the default output; "text" is meant for local runs.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components take a child logger:
//
//	log := logger.Component("correlation")
//	log.Warn("malformed response", "key", key)
package logging
