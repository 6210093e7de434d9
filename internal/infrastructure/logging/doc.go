// Package logging provides structured logging for the device sync core.
//
// The Logger keeps a key-value call style (msg followed by alternating keys
// and values) on top of zerolog, so components can depend on a small
// interface instead of the logging backend.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, console
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to connect", "error", err)
//
// Never log secrets, tokens or passwords.
package logging
