package perr

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupportedMedia marks corrupt or unsupported input files.
	// Stage handlers treat it as fatal: the record fails immediately and
	// the job is not retried.
	ErrUnsupportedMedia = errors.New("unsupported media")
)

// Fatal wraps an error so the job framework skips retries for it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// IsFatal reports whether err (or anything it wraps) was marked fatal or is
// one of the inherently non-retryable sentinels.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return true
	}
	return errors.Is(err, ErrUnsupportedMedia) || errors.Is(err, ErrInvalidArgument)
}

// Retryable is the inverse classification used by job retry policies.
func Retryable(err error) bool {
	return err != nil && !IsFatal(err)
}
