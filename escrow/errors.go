package escrow

import "errors"

// Failure taxonomy for every engine operation. Operations wrap these with
// call-site context; callers classify with errors.Is. Validation is fully
// front-loaded, so a returned error implies no state was touched.
var (
	// ErrNotFound covers unknown agreements and out-of-range milestone
	// ordinals.
	ErrNotFound = errors.New("escrow: not found")
	// ErrUnauthorized means the caller lacks the capability the operation
	// requires.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrInvalidState means the operation is not valid in the entity's
	// current state.
	ErrInvalidState = errors.New("escrow: invalid state")
	// ErrInvalidInput covers malformed addresses, bad milestone counts and
	// amount mismatches.
	ErrInvalidInput = errors.New("escrow: invalid input")
	// ErrCapacityExceeded means the registry is at its cardinality bound.
	ErrCapacityExceeded = errors.New("escrow: capacity exceeded")
	// ErrTimeoutNotReached means a refund was requested before the
	// agreement's timeout tick.
	ErrTimeoutNotReached = errors.New("escrow: timeout not reached")
)
