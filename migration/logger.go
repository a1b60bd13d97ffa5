package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger prefixes run messages with a code and the time elapsed since the run
// started
type Logger struct {
	code  string
	start time.Time
}

// NewLogger initialize a new run logger
func NewLogger(code string) (l *Logger) {
	return &Logger{
		code:  code,
		start: time.Now(),
	}
}

// Debug helper to use zerolog debug
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(log.Debug(), msg, args...)
}

// Info helper to use zerolog info
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(log.Info(), msg, args...)
}

// Warn helper to use zerolog warn
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(log.Warn(), msg, args...)
}

func (l *Logger) log(ze *zerolog.Event, msg string, args ...interface{}) {
	sb := strings.Builder{}

	_ = sb.WriteByte('[')
	_, _ = sb.WriteString(l.code)
	_ = sb.WriteByte(']')

	_ = sb.WriteByte('[')
	_, _ = sb.WriteString(time.Since(l.start).Round(time.Millisecond).String())
	_ = sb.WriteByte(']')

	_ = sb.WriteByte(' ')
	_, _ = sb.WriteString(fmt.Sprintf(msg, args...))
	ze.Msg(sb.String())
}
