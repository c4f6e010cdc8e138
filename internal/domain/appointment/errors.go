package appointment

import "errors"

var (
	ErrValidation       = errors.New("invalid data")
	ErrAlreadyExists    = errors.New("appointment already exists for the selected time")
	ErrNotFound         = errors.New("appointment not found")
	ErrAlreadyCancelled = errors.New("appointment already cancelled")
	ErrStoreFailure     = errors.New("appointment store failure")

	// ErrDuplicate is reported by a Session when the store rejects a write
	// because of the active-appointment uniqueness constraint.
	ErrDuplicate = errors.New("unique constraint violation")
)

// StoreError wraps an unexpected persistence error. It matches ErrStoreFailure
// and unwraps to the driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "appointment store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
