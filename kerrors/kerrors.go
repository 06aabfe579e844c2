// Package kerrors provides a JSON-serializable error wrapper and the small
// closed set of domain error types the module raises: configuration errors
// (raised at construction, not meant to be caught), handler errors (fatal to
// a running dispatcher), and sampler errors (tolerated up to a threshold by
// the monitor loop).
package kerrors

import (
	"errors"
	"fmt"
)

// New returns an instance of JsonError.
func New(message string) error {
	return &JsonError{error: errors.New(message)}
}

// Format is analogous to fmt.Errorf, returning an instance of JsonError.
func Format(format string, v ...interface{}) error {
	return &JsonError{fmt.Errorf(format, v...)}
}

// Wrap err, returning an instance of JsonError. If err is nil, return nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &JsonError{error: err}
}

// JsonError wraps error and implements MarshalJSON so that errors embedded
// in structured log records or status structs serialize as plain strings.
type JsonError struct {
	error
}

func (e *JsonError) Unwrap() error { return e.error }

func (e *JsonError) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.Error() + `"`), nil
}

// ConfigError signals invalid configuration discovered at construction time:
// an empty topic list, a malformed broker URI. Not meant to be retried.
type ConfigError struct{ *JsonError }

func NewConfigError(format string, v ...interface{}) *ConfigError {
	return &ConfigError{&JsonError{fmt.Errorf(format, v...)}}
}

// HandlerError wraps a failure returned by the user's batch handler. It is
// fatal: the dispatcher that produced it transitions to Faulted.
type HandlerError struct {
	Partition int32
	*JsonError
}

func NewHandlerError(partition int32, cause error) *HandlerError {
	return &HandlerError{Partition: partition, JsonError: &JsonError{cause}}
}

func (e *HandlerError) Unwrap() error { return e.JsonError.error }

// SamplerError wraps a failed progress-sampling tick, along with how many
// consecutive failures (including this one) the monitor has now seen.
type SamplerError struct {
	ConsecutiveFailures int
	*JsonError
}

func NewSamplerError(consecutive int, cause error) *SamplerError {
	return &SamplerError{ConsecutiveFailures: consecutive, JsonError: &JsonError{cause}}
}

func (e *SamplerError) Unwrap() error { return e.JsonError.error }
