// Package logging provides the structured logger used throughout the
// module, wrapping go-kit/log the way every subsystem logger call site
// does: Logger.Error("message", "key", value, ...).
package logging

import (
	"os"
	"time"

	kitlog "github.com/go-kit/kit/log"
	kitlevel "github.com/go-kit/kit/log/level"
)

// Logger is a leveled, structured logger.
type Logger struct {
	base kitlog.Logger
}

var root = NewLogger(os.Stderr)

// NewLogger creates a new root logger writing logfmt lines to w.
func NewLogger(w *os.File) *Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	base = kitlog.With(base, "ts", kitlog.TimestampFormat(time.Now, time.RFC3339))
	return &Logger{base: base}
}

// GetLogger returns a named child of the root logger, matching the
// "module"-tagged loggers handed to each subsystem constructor.
func GetLogger(module string) *Logger {
	return &Logger{base: kitlog.With(root.base, "module", module)}
}

// With returns a child logger with the given key/value pairs attached to
// every subsequent log line.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{base: kitlog.With(l.base, keyvals...)}
}

func (l *Logger) log(lvl kitlevel.Value, msg string, keyvals ...interface{}) {
	kv := append([]interface{}{"msg", msg}, keyvals...)
	_ = kitlevel.NewFilter(l.base, kitlevel.AllowAll()).Log(append(kv, kitlevel.Key(), lvl)...)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(kitlevel.DebugValue(), msg, keyvals...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(kitlevel.InfoValue(), msg, keyvals...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(kitlevel.WarnValue(), msg, keyvals...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(kitlevel.ErrorValue(), msg, keyvals...)
}
