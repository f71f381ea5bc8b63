package repositories

import (
	"context"
	"errors"
	"fmt"
)

// StoreError implements RepositoryError for the key/value cart backends.
type StoreError struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
	corrupt     bool
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether no snapshot exists.
func (e *StoreError) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the write lost a race.
func (e *StoreError) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the backend could not be reached.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.unavailable }

// ErrSnapshotNotFound is the cause carried by NotFound errors.
var ErrSnapshotNotFound = errors.New("cart snapshot not found")

// NewNotFoundError reports a missing snapshot.
func NewNotFoundError(op string) error {
	return &StoreError{op: op, err: ErrSnapshotNotFound, notFound: true}
}

// NewUnavailableError reports a backend outage. Context cancellations pass through untouched.
func NewUnavailableError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StoreError{op: op, err: err, unavailable: true}
}

// NewCorruptError reports a snapshot that exists but cannot be decoded.
func NewCorruptError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{op: op, err: err, corrupt: true}
}

// IsNotFound reports whether err is a RepositoryError flagged as not found.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

// IsCorrupt reports whether err describes a stored snapshot that exists but cannot be
// decoded, including envelopes written with an unknown version.
func IsCorrupt(err error) bool {
	if errors.Is(err, ErrUnsupportedSnapshotVersion) {
		return true
	}
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.corrupt
}
