package search

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is wrapped by every configuration error. These are detected
	// before any hardware is touched.
	ErrConfig = errors.New("search: configuration error")

	// ErrProtocol is wrapped when the executor's decoded results disagree
	// with the engine's view of the targets.
	ErrProtocol = errors.New("search: protocol error")
)

// ConfigError describes one invalid configuration value. Target is -1 when
// the problem is not tied to a single target.
type ConfigError struct {
	Target int
	Field  string
	Msg    string
}

func (e *ConfigError) Error() string {
	if e.Target >= 0 {
		return fmt.Sprintf("search: invalid %s for target %d: %s", e.Field, e.Target, e.Msg)
	}
	return fmt.Sprintf("search: invalid %s: %s", e.Field, e.Msg)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

func configErrorf(target int, field, format string, args ...any) *ConfigError {
	return &ConfigError{Target: target, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a configuration error not tied to a single target, for
// use by packages layered on the engine.
func ConfigErrorf(field, format string, args ...any) error {
	return configErrorf(-1, field, format, args...)
}

// ProtocolError reports an executor/engine disagreement at a given iteration.
type ProtocolError struct {
	Iteration int
	Msg       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("search: protocol violation at iteration %d: %s", e.Iteration, e.Msg)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}
