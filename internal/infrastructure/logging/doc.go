// Package logging provides structured logging for the Bulles portal.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the server and the CLI.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Security
//
// Never log passwords, password hashes, or tokens. Log the username,
// user ID and session ID instead.
package logging
