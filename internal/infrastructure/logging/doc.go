// Package logging provides structured logging for btsync.
//
// It wraps the standard library's log/slog with configuration-driven
// format and level selection, plus default service/version fields on
// every record.
//
// Components receive a *Logger (or the narrow logging interface they
// declare locally) by injection; there is no package-level logger.
package logging
