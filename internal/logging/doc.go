// Package logging assembles the structured slog loggers used across kiln.
//
// It owns level and output plumbing for both the CLI and the privileged
// helper, exposes attribute helper constructors so components emit data with
// a consistent shape, and provides a no-op logger for tests and wiring code
// that cannot fail.
package logging
