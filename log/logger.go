package log

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o mocks/logger.go . Logger

// Logger is a minimal logging interface for integrating the engine with the
// host's logging infrastructure.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Noop is a Logger that does nothing. It is the default wherever no logger
// was configured.
type Noop struct{}

func (Noop) Debug(msg string, keysAndValues ...any) {}
func (Noop) Info(msg string, keysAndValues ...any)  {}
func (Noop) Error(msg string, keysAndValues ...any) {}
func (Noop) Warn(msg string, keysAndValues ...any)  {}
