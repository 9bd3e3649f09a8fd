// Package zap adapts a *zap.Logger to cassync.Logger.
package zap

import (
	"github.com/unkn0wn-root/cassync"
	"go.uber.org/zap"
)

var _ cassync.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "cassync" so its lines can be filtered.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("cassync")} }

func (z Logger) Debug(msg string, f cassync.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f cassync.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f cassync.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f cassync.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f cassync.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
