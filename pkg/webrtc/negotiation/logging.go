package negotiation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// levelTrace sits below slog's debug level for pion's chattiest output.
const levelTrace = slog.LevelDebug - 4

type slogFactory struct {
	logger *slog.Logger
}

// NewLoggerFactory routes pion's internal logging into logger.
func NewLoggerFactory(logger *slog.Logger) logging.LoggerFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return slogFactory{logger: logger}
}

func (f slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return slogLeveled{logger: f.logger.With("scope", "pion/"+scope)}
}

type slogLeveled struct {
	logger *slog.Logger
}

func (l slogLeveled) log(level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg)
}

func (l slogLeveled) logf(level slog.Level, format string, args ...interface{}) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l slogLeveled) Trace(msg string)                          { l.log(levelTrace, msg) }
func (l slogLeveled) Tracef(format string, args ...interface{}) { l.logf(levelTrace, format, args...) }
func (l slogLeveled) Debug(msg string)                          { l.log(slog.LevelDebug, msg) }
func (l slogLeveled) Debugf(format string, args ...interface{}) { l.logf(slog.LevelDebug, format, args...) }
func (l slogLeveled) Info(msg string)                           { l.log(slog.LevelInfo, msg) }
func (l slogLeveled) Infof(format string, args ...interface{})  { l.logf(slog.LevelInfo, format, args...) }
func (l slogLeveled) Warn(msg string)                           { l.log(slog.LevelWarn, msg) }
func (l slogLeveled) Warnf(format string, args ...interface{})  { l.logf(slog.LevelWarn, format, args...) }
func (l slogLeveled) Error(msg string)                          { l.log(slog.LevelError, msg) }
func (l slogLeveled) Errorf(format string, args ...interface{}) { l.logf(slog.LevelError, format, args...) }
