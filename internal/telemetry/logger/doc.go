// Package logger provides structured logging for msgvault.
//
// This package builds log/slog loggers:
//
//   - logger.go: handler construction and level management
//   - context.go: logger propagation through context.Context
//   - redact.go: key material redaction
//
// Features:
//
//   - JSON and text output formats
//   - Process-wide adjustable log level
//   - Automatic redaction of private keys and other key material
package logger
