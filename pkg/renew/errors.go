package renew

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRefresh reports that renewal was requested but no refresh
	// credential is stored. The renewer fast-fails without any network
	// attempt; retrying cannot help until a refresh credential is saved.
	ErrMissingRefresh = errors.New("renew: no refresh credential stored")

	// ErrAccessExtraction reports that a renewal response carried a
	// success status but the access extractor found no credential in it.
	// It consumes an attempt like any other failure.
	ErrAccessExtraction = errors.New("renew: renewal response carried no access credential")
)

// RejectedError reports a renewal attempt the server turned down: the
// exchange completed but its status was not one of the success codes.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("renew: renewal rejected with status %d", e.Status)
}
