// Package credstore persists the two secrets the renewal pipeline runs on:
// the short-lived access credential attached to outgoing requests and the
// longer-lived refresh credential spent during renewal.
//
// The package defines the storage contract and its error shapes; concrete
// media live under drivers/ (memory, file, sqlite, redis). Drivers are pure
// storage: no retry, no renewal policy, no interpretation of the secrets
// they hold. Retry on failure is the renewal layer's call to make.
package credstore

import (
	"context"
	"errors"
	"fmt"
)

// Kind names one of the two stored secrets.
type Kind string

const (
	// KindAccess is the short-lived credential presented on each request.
	KindAccess Kind = "access"

	// KindRefresh is the long-lived credential exchanged for a new access
	// credential during renewal.
	KindRefresh Kind = "refresh"
)

// ErrNotFound reports that no credential of the requested kind is stored.
// Absence is a normal state, not a medium failure, so it is a bare
// sentinel rather than a StoreError.
var ErrNotFound = errors.New("credstore: not found")

// Store is the persistence contract for a single credential pair.
// Implementations must be safe for concurrent use; the pipeline reads and
// writes from many goroutines at once.
type Store interface {
	// Get returns the stored credential of the given kind, or ErrNotFound
	// if none is stored.
	Get(ctx context.Context, kind Kind) (string, error)

	// Save stores or replaces the credential of the given kind.
	Save(ctx context.Context, kind Kind, credential string) error

	// Clear removes the credential of the given kind. Clearing a kind that
	// holds nothing is not an error.
	Clear(ctx context.Context, kind Kind) error

	// ClearAll removes both credentials. Both kinds are attempted even if
	// one of them fails; the failures aggregate into the returned error.
	ClearAll(ctx context.Context) error

	// Close releases any underlying resources (no-op for some drivers).
	Close() error
}

// StoreError reports a failure of the underlying storage medium. It names
// the operation and the credential kind so callers can tell a failed read
// at dispatch from a failed write during renewal. The cause is always
// reachable through Unwrap.
type StoreError struct {
	Op   string // "get", "save", "clear", "clear_all", "open"
	Kind Kind   // empty when the operation spans both kinds
	Err  error
}

func (e *StoreError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("credstore: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credstore: %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
