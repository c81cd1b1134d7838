package logging

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts a slog logger to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

// CronLogger returns a cron.Logger writing to l. Routine scheduler
// chatter is logged at debug level.
func CronLogger(l *slog.Logger) cron.Logger {
	return cronLogger{l: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
