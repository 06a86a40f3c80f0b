package logx

import (
	"github.com/ranops-core/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
}

func safe(opts ...LoggerOpts) *LoggerOpts {
	if len(opts) == 0 {
		return DefaultLoggerOpts
	}
	return &opts[0]
}

func Init(opts ...LoggerOpts) {
	if safe(opts...).Environment == core.Production {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	} else {
		log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Caller().Logger()
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}
}

// With returns a sub-logger carrying the given component field, for
// packages that log many events with the same origin.
func With(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
