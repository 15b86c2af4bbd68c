// Package obslog wraps a zap.SugaredLogger behind the small method set a
// controllers/common.Reconciler exposes (Info, Error, V-style debug), so
// every internal package depends on an interface rather than on zap
// directly.
package obslog

import "go.uber.org/zap"

// Logger is the logging surface every internal/* component accepts.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(err error, msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a production-profile zap logger wrapped as a Logger.
func New() (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &zapLogger{s: z.Sugar()}, nil
}

func (l *zapLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

func (l *zapLogger) Error(err error, msg string, kv ...interface{}) {
	all := append([]interface{}{"error", err}, kv...)
	l.s.Errorw(msg, all...)
}

// Noop is a Logger that discards everything; used as the default in tests
// and anywhere the caller does not care to observe logs.
var Noop Logger = noop{}

type noop struct{}

func (noop) Info(string, ...interface{})         {}
func (noop) Debug(string, ...interface{})        {}
func (noop) Warn(string, ...interface{})         {}
func (noop) Error(error, string, ...interface{}) {}
