// Package logger wraps zerolog behind a small structured logging
// interface shared by every component.
//
// A global instance is initialized once from config.LoggingConfig and
// retrieved with GetLogger; components that want correlated output attach
// fields with WithField/WithFields. Tests use NewNopLogger.
package logger
