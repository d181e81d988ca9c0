// Package logger provides structured JSON logging for all services.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

type Logger interface {
	Info(message string, fields map[string]interface{})
	Error(message string, fields map[string]interface{})
	Warn(message string, fields map[string]interface{})
	Debug(message string, fields map[string]interface{})
	Fatal(message string, fields map[string]interface{})
}

type zeroLogger struct {
	logger zerolog.Logger
}

func New(serviceName string) Logger {
	zl := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	return &zeroLogger{logger: zl}
}

func (l *zeroLogger) log(ev *zerolog.Event, message string, fields map[string]interface{}) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(message)
}

func (l *zeroLogger) Info(message string, fields map[string]interface{}) {
	l.log(l.logger.Info(), message, fields)
}

func (l *zeroLogger) Error(message string, fields map[string]interface{}) {
	l.log(l.logger.Error(), message, fields)
}

func (l *zeroLogger) Warn(message string, fields map[string]interface{}) {
	l.log(l.logger.Warn(), message, fields)
}

func (l *zeroLogger) Debug(message string, fields map[string]interface{}) {
	l.log(l.logger.Debug(), message, fields)
}

func (l *zeroLogger) Fatal(message string, fields map[string]interface{}) {
	l.log(l.logger.Fatal(), message, fields)
}

func NewNop() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (l *nopLogger) Info(message string, fields map[string]interface{})  {}
func (l *nopLogger) Error(message string, fields map[string]interface{}) {}
func (l *nopLogger) Warn(message string, fields map[string]interface{})  {}
func (l *nopLogger) Debug(message string, fields map[string]interface{}) {}
func (l *nopLogger) Fatal(message string, fields map[string]interface{}) {}
