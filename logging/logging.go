// Package logging wraps zap behind the key/value logger interface the
// rest of the service is written against.
package logging

import (
	"go.uber.org/zap"
)

type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger builds the application logger. env == "production" gets
// the JSON production config, anything else the console development one.
func NewZapLogger(env string) (*ZapLogger, error) {
	var (
		base *zap.Logger
		err  error
	)
	if env == "production" {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return &ZapLogger{s: base.Sugar()}, nil
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *ZapLogger) Info(msg string, keysAndValues ...any) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *ZapLogger) Warn(msg string, keysAndValues ...any) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l *ZapLogger) Error(msg string, keysAndValues ...any) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l *ZapLogger) Sync() error {
	return l.s.Sync()
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() Logger {
	return &ZapLogger{s: zap.NewNop().Sugar()}
}
