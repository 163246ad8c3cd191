package storkit

import "go.uber.org/zap"

// Logger is the logging adapter storkit uses internally. It accepts simple
// key/value variadic pairs to keep call sites concise and to decouple from
// any particular structured-logging Field type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// WrapZapLogger adapts a zap logger to the storkit Logger interface.
func WrapZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return &nopLogger{}
	}
	return &zapAdapter{s: l.Sugar()}
}

// NewNopLogger returns a no-op Logger.
func NewNopLogger() Logger { return &nopLogger{} }

type zapAdapter struct{ s *zap.SugaredLogger }

func (z *zapAdapter) Debug(msg string, args ...any) { z.s.Debugw(msg, args...) }
func (z *zapAdapter) Info(msg string, args ...any)  { z.s.Infow(msg, args...) }
func (z *zapAdapter) Warn(msg string, args ...any)  { z.s.Warnw(msg, args...) }
func (z *zapAdapter) Error(msg string, args ...any) { z.s.Errorw(msg, args...) }

type nopLogger struct{}

func (n *nopLogger) Debug(_ string, _ ...any) {}
func (n *nopLogger) Info(_ string, _ ...any)  {}
func (n *nopLogger) Warn(_ string, _ ...any)  {}
func (n *nopLogger) Error(_ string, _ ...any) {}
