package errors

import "errors"

// markedError tags an error with an explicit retryability decision, letting a
// worker classify a backend failure before surfacing it.
type markedError struct {
	err       error
	retryable bool
}

func (e *markedError) Error() string {
	return e.err.Error()
}

func (e *markedError) Unwrap() error {
	return e.err
}

// MarkRetryable tags an error as safe to retry.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retryable: true}
}

// MarkPermanent tags an error as not worth retrying.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retryable: false}
}

// retryabilityMark extracts an explicit mark, if present.
func retryabilityMark(err error) (bool, bool) {
	var me *markedError
	if errors.As(err, &me) {
		return me.retryable, true
	}
	return false, false
}
