package platform

import "log/slog"

// Logger defines the interface for runtime logging.
// The runtime uses structured logging with key-value pairs so implementing
// applications control how runtime logs appear:
//
//	logger.Info("Module loaded", "module", "identity", "version", "1.2.0")
//
// The variadic key-value form is compatible with slog, logrus, zap and
// similar libraries.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger to the runtime's Logger interface.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
