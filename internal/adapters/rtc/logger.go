package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's internal logging into zerolog.
type LoggerFactory struct {
	base  zerolog.Logger
	level zerolog.Level
}

// NewLoggerFactory logs through the global logger at level (a zerolog level
// name). Unknown names fall back to warn.
func NewLoggerFactory(level string) *LoggerFactory {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	return &LoggerFactory{base: log.Logger, level: lvl}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{
		l: f.base.Level(f.level).With().Str("module", "pion").Str("scope", scope).Logger(),
	}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (p *leveledLogger) Trace(msg string)                          { p.l.Trace().Msg(msg) }
func (p *leveledLogger) Tracef(format string, args ...interface{}) { p.l.Trace().Msg(fmt.Sprintf(format, args...)) }
func (p *leveledLogger) Debug(msg string)                          { p.l.Debug().Msg(msg) }
func (p *leveledLogger) Debugf(format string, args ...interface{}) { p.l.Debug().Msg(fmt.Sprintf(format, args...)) }
func (p *leveledLogger) Info(msg string)                           { p.l.Info().Msg(msg) }
func (p *leveledLogger) Infof(format string, args ...interface{})  { p.l.Info().Msg(fmt.Sprintf(format, args...)) }
func (p *leveledLogger) Warn(msg string)                           { p.l.Warn().Msg(msg) }
func (p *leveledLogger) Warnf(format string, args ...interface{})  { p.l.Warn().Msg(fmt.Sprintf(format, args...)) }
func (p *leveledLogger) Error(msg string)                          { p.l.Error().Msg(msg) }
func (p *leveledLogger) Errorf(format string, args ...interface{}) { p.l.Error().Msg(fmt.Sprintf(format, args...)) }
