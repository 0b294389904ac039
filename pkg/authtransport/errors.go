package authtransport

import "fmt"

// RetrievalError reports that the access credential could not be read ahead
// of dispatch. The request was never sent.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("authtransport: failed to read access credential: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// RenewalError is terminal: a response demanded renewal, renewal gave up,
// and the stored credentials were purged so later requests don't keep
// burning a dead refresh credential. Status is the status code of the
// response that triggered renewal.
type RenewalError struct {
	Status int

	// Err is the renewal failure cause.
	Err error

	// ClearErr is non-nil when purging the store also failed. It never
	// masks Err.
	ClearErr error
}

func (e *RenewalError) Error() string {
	msg := fmt.Sprintf("authtransport: renewal after status %d failed: %v", e.Status, e.Err)
	if e.ClearErr != nil {
		msg += fmt.Sprintf(" (clearing credentials also failed: %v)", e.ClearErr)
	}
	return msg
}

func (e *RenewalError) Unwrap() []error {
	errs := []error{e.Err}
	if e.ClearErr != nil {
		errs = append(errs, e.ClearErr)
	}
	return errs
}
