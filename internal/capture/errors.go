package capture

import (
	"errors"
	"fmt"
)

// ErrIdleUnsupported is returned by Browser.WaitForIdle when the provider
// does not expose a semantic wait capability.
var ErrIdleUnsupported = errors.New("semantic idle wait not supported by provider")

// FatalError marks a failure that must not be retried: invalid configuration,
// provider-side rejection, or a permanently broken call.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err so the retry executor aborts immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Fatalf formats a new fatal error.
func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// RetryExhaustedError is returned after the attempt budget for a stage is
// spent. It carries the last underlying cause.
type RetryExhaustedError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
