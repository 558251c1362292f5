package out

import (
	"log"
)

// Logger adds leveled prefixes on top of the standard logger.
type Logger struct {
	*log.Logger
}

func NewLogger(logger *log.Logger) *Logger {
	return &Logger{Logger: logger}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Printf("[debug] "+format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Printf("[error] "+format, args...)
}
