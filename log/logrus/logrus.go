// Package logrus adapts a *logrus.Entry to cassync.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/cassync"
)

var _ cassync.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with component=cassync.
func New(l *logrus.Logger) Logger { return Logger{E: l.WithField("component", "cassync")} }

func (l Logger) Debug(msg string, f cassync.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f cassync.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f cassync.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f cassync.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f cassync.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	return l.E.WithFields(logrus.Fields(f))
}
