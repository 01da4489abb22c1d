package git

import (
	"errors"

	"github.com/zhleyai/git/log"
)

// Option is a function that configures an Engine during creation.
type Option func(e *engine) error

// WithLogger sets the logger for the engine. Without it, the engine logs
// nowhere.
func WithLogger(logger log.Logger) Option {
	return func(e *engine) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithPackfileStorage sets the packfile storage the engine uses to resolve
// thin-pack delta bases. A per-call context override via
// WithPackfileStorageFromContext takes precedence.
func WithPackfileStorage(storage PackfileStorage) Option {
	return func(e *engine) error {
		if storage == nil {
			return errors.New("packfile storage cannot be nil")
		}
		e.storage = storage
		return nil
	}
}
