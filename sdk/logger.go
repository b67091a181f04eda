package sdk

import (
	"github.com/sirupsen/logrus"
)

// Logger is the sole observability channel the core writes to. Each method
// accepts variadic arguments in the style of fmt.Print.
//
// *logrus.Logger and *logrus.Entry satisfy Logger directly:
//
//	log := logrus.New()
//	log.SetLevel(logrus.DebugLevel)
//	cc := sdk.CommandContext{BaseURL: "https://api.example.org", Logger: log}
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

// fieldLogger is implemented by logrus loggers and entries. When the configured
// Logger supports it, the core attaches structured fields instead of folding
// them into the message.
type fieldLogger interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

// NoopLogger discards everything. It is used when no Logger is configured.
type NoopLogger struct{}

func (NoopLogger) Debug(args ...interface{}) {}
func (NoopLogger) Info(args ...interface{})  {}
func (NoopLogger) Warn(args ...interface{})  {}
func (NoopLogger) Error(args ...interface{}) {}

// withFields returns a Logger carrying fields when l supports them, or l
// itself otherwise.
func withFields(l Logger, fields logrus.Fields) Logger {
	if fl, ok := l.(fieldLogger); ok {
		return fl.WithFields(fields)
	}
	return l
}
