package ingest

import "errors"

// TransientError marks failures worth retrying: network errors talking to
// the embedder or the index, blob I/O hiccups, record-store blips.
// Anything not wrapped in it (unsupported formats, parse failures) is
// terminal for the document.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func isTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryableError is what Process returns when the attempt failed but the
// job still has attempts left. The worker re-enqueues with backoff keyed on
// Attempt instead of dead-lettering.
type RetryableError struct {
	Attempt int
	Err     error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// AsRetryable reports whether err asks for a delayed redelivery.
func AsRetryable(err error) (*RetryableError, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
