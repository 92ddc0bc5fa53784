// Package logger provides structured logging with configurable log levels.
// It wraps log/slog, emitting JSON in production and tint-coloured text
// during development, and tags every record with the deployment environment.
package logger
