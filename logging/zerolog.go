// Package logging provides ready-made implementations of the runtime's
// core.Logger interface: a zerolog-backed structured logger for production
// and an in-memory ring logger for diagnostics export.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/Swind/go-backend-runtime/core"
)

// ZerologLogger adapts a zerolog.Logger to the core.Logger interface.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a logger writing JSON lines to w. A nil writer
// defaults to stderr.
func NewZerologLogger(w io.Writer) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	return &ZerologLogger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// WrapZerolog adapts an existing zerolog.Logger, keeping its configured
// writers, level, and context fields.
func WrapZerolog(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

// Level returns a copy of the logger restricted to the given zerolog level.
func (l *ZerologLogger) Level(level zerolog.Level) *ZerologLogger {
	return &ZerologLogger{zl: l.zl.Level(level)}
}

func (l *ZerologLogger) Debug(msg string, fields ...core.Field) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *ZerologLogger) Info(msg string, fields ...core.Field) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *ZerologLogger) Warn(msg string, fields ...core.Field) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *ZerologLogger) Error(msg string, fields ...core.Field) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *ZerologLogger) emit(ev *zerolog.Event, msg string, fields []core.Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case error:
			ev = ev.AnErr(f.Key, v)
		default:
			ev = ev.Interface(f.Key, f.Value)
		}
	}
	ev.Msg(msg)
}
