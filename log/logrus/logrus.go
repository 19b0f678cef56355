// Package logrus adapts a *logrus.Entry to memocache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/memocache"
)

var _ memocache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every line with component=memocache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "memocache")}
}

func (l LogrusLogger) Debug(msg string, f memocache.Fields) {
	l.with(f).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f memocache.Fields) { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f memocache.Fields) { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f memocache.Fields) {
	l.with(f).Error(msg)
}

func (l LogrusLogger) with(f memocache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	if err, ok := f["err"].(error); ok {
		rest := make(logrus.Fields, len(f))
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return l.E.WithError(err).WithFields(rest)
	}
	return l.E.WithFields(logrus.Fields(f))
}
