// Package logger holds the logger type shared by the user operation packages.
// Every component takes an optional Logger; a nil one is replaced through
// EnsureLogger so call sites never check for nil.
package logger

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

type Logger = sdklogging.Logger

// NoOpLogger drops every entry. Tests and library callers that pass no logger
// get one.
type NoOpLogger struct{}

var _ Logger = (*NoOpLogger)(nil)

func (l *NoOpLogger) Info(string, ...interface{})   {}
func (l *NoOpLogger) Infof(string, ...interface{})  {}
func (l *NoOpLogger) Debug(string, ...interface{})  {}
func (l *NoOpLogger) Debugf(string, ...interface{}) {}
func (l *NoOpLogger) Error(string, ...interface{})  {}
func (l *NoOpLogger) Errorf(string, ...interface{}) {}
func (l *NoOpLogger) Warn(string, ...interface{})   {}
func (l *NoOpLogger) Warnf(string, ...interface{})  {}
func (l *NoOpLogger) Fatal(string, ...interface{})  {}
func (l *NoOpLogger) Fatalf(string, ...interface{}) {}

func (l *NoOpLogger) With(...interface{}) Logger    { return l }
func (l *NoOpLogger) WithComponent(string) Logger   { return l }
func (l *NoOpLogger) WithName(string) Logger        { return l }
func (l *NoOpLogger) WithServiceName(string) Logger { return l }
func (l *NoOpLogger) WithHostName(string) Logger    { return l }
func (l *NoOpLogger) Sync() error                   { return nil }

func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// EnsureLogger returns l, or a NoOpLogger when l is nil.
func EnsureLogger(l Logger) Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}
