package logging

import (
	"time"

	"go.uber.org/zap"
)

// Logger wraps zap.SugaredLogger and
// allows to get the interval for periodic logging.
type Logger struct {
	*zap.SugaredLogger
	interval time.Duration
}

// NewLogger returns a new Logger.
func NewLogger(base *zap.SugaredLogger, interval time.Duration) *Logger {
	return &Logger{
		SugaredLogger: base,
		interval:      interval,
	}
}

// Interval returns the interval for periodic logging.
func (l *Logger) Interval() time.Duration {
	return l.interval
}

// Named returns a child Logger with the given name segment, keeping the periodic logging interval.
func (l *Logger) Named(name string) *Logger {
	return NewLogger(l.SugaredLogger.Named(name), l.interval)
}

// Nop returns a Logger that discards everything, useful as a fallback when callers pass nil.
func Nop() *Logger {
	return NewLogger(zap.NewNop().Sugar(), 20*time.Second)
}
