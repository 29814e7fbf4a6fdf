package memberlists

import (
	"errors"
	"fmt"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the service has been closed
	ErrClosed = errors.New("service is closed")
)

// ConfigError reports the setting that failed validation
type ConfigError struct {
	Field string
	Value interface{}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s=%v", ErrInvalidConfig, e.Field, e.Value)
}

// Unwrap returns ErrInvalidConfig
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
