package train

import "github.com/pkg/errors"

// TransientExitCode is the process exit code for failures worth retrying, such
// as checkpoint storage outages. Schedulers treat it as "restart me" rather
// than "the configuration is broken".
const TransientExitCode = 42

// TransientError marks an error as retryable. The training state on disk is
// intact, so a scheduler can relaunch the process and resume from the latest
// checkpoint.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e TransientError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as retryable. A nil error stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err}
}

// IsTransient reports whether any error in the chain is marked retryable.
func IsTransient(err error) bool {
	var t TransientError
	return errors.As(err, &t)
}
