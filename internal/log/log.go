// Package log is a thin leveled-logging wrapper shared by the container
// side and the edge side, so call sites read the same way regardless of
// which peer they run in.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel adjusts the base logger's verbosity; "debug", "info", "warn", "error".
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	base.SetLevel(lvl)
}

// Fields is a typed alias so call sites don't need to import logrus directly.
type Fields = logrus.Fields

func With(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

func Debug(args ...interface{})            { base.Debug(args...) }
func Debugf(format string, a ...interface{}) { base.Debugf(format, a...) }
func Info(args ...interface{})              { base.Info(args...) }
func Infof(format string, a ...interface{}) { base.Infof(format, a...) }
func Warn(args ...interface{})              { base.Warn(args...) }
func Warnf(format string, a ...interface{}) { base.Warnf(format, a...) }
func Error(args ...interface{})             { base.Error(args...) }
func Errorf(format string, a ...interface{}) { base.Errorf(format, a...) }
