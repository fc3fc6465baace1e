// Package logging provides structured logging configuration for bunnyd.
//
// This package wraps log/slog to provide consistent logging across all bunnyd
// components. The proxy logs JSON by default; the pretty toggle from the
// environment switches to the human-readable text handler for development.
//
// Components should accept a *slog.Logger in their constructor. If no logger
// is provided, use logging.Nop() for a no-op logger.
package logging
