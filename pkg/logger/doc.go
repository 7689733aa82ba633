// Package logger provides structured logging for xbookmarks.
//
// It wraps zerolog behind a small Logger interface with leveled methods,
// field chaining (WithField/WithFields/WithError) and a global instance
// initialized from the logging configuration. Tests can swap in
// TestLogger to capture messages without output.
package logger
