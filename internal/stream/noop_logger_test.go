package stream

import "gitlab.com/nevasik7/alerting/logger"

// noopLogger is a logger.Logger that discards everything, used wherever
// tests need to satisfy the interface without asserting on log output.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string)                          {}
func (n *noopLogger) Debugf(format string, args ...interface{}) {}
func (n *noopLogger) Info(msg string)                           {}
func (n *noopLogger) Infof(format string, args ...interface{})  {}
func (n *noopLogger) Warn(msg string)                           {}
func (n *noopLogger) Warnf(format string, args ...interface{})  {}
func (n *noopLogger) Error(msg string)                          {}
func (n *noopLogger) Errorf(format string, args ...interface{}) {}
func (n *noopLogger) Fatal(msg string)                          {}
func (n *noopLogger) Fatalf(format string, args ...interface{}) {}
func (n *noopLogger) Panic(msg string)                          {}
func (n *noopLogger) Panicf(format string, args ...interface{}) {}
func (n *noopLogger) WithField(key string, value interface{}) logger.Logger {
	return n
}
func (n *noopLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return n
}
