// Package log is the ambient logging surface used everywhere in this
// module, the same role the teacher's own "debug/log" package plays for
// reporter and symuploader (Debugf/Warnf/Errorf/Fatalf call sites). It
// wraps logrus rather than inventing a bespoke leveled-logger.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the global log level (e.g. from config/env at startup).
func SetLevel(level logrus.Level) { std.SetLevel(level) }

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }

// WithField returns an entry for structured logging call sites that want
// to attach a single key/value (e.g. a debug-id or a library path).
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}
