package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrNotFound          = errors.New("record not found")
)

// ConfigurationError indicates invalid constructor parameters. It is fatal
// and raised immediately, never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError builds a ConfigurationError for a named parameter.
func NewConfigurationError(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// DataError indicates malformed input data: a bad price bar, an out-of-range
// strategy signal, or a feature-length mismatch. Fatal to the current run.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("invalid data: %s", e.Reason)
}

// NewDataError builds a DataError with the given reason.
func NewDataError(format string, args ...interface{}) error {
	return &DataError{Reason: fmt.Sprintf(format, args...)}
}

// IsDataError reports whether err is a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
