package store

import "errors"

// Error kinds surfaced to store callers. Not-found is not an error: Delete
// reports it through its ok result and Update through a zero count.
var (
	// ErrValidation marks a rejected description, status or change set.
	ErrValidation = errors.New("validation failed")

	// ErrCapacityExceeded is returned by Create when every slot is taken.
	ErrCapacityExceeded = errors.New("no free task slots")

	// ErrPINRejected is returned by Clear when the PIN does not match.
	ErrPINRejected = errors.New("pin rejected")

	// ErrCorrupt is returned by Open when persisted IDs break the slot invariant.
	ErrCorrupt = errors.New("backing store holds invalid task ids")
)
