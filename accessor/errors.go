package accessor

import (
	"errors"
	"fmt"
)

// Error taxonomy for accessor failures.
//
// Callers match with errors.Is. ErrTypeMismatch and ErrNilReceiver both
// wrap ErrInvalidArgument, so code that only cares about the broad class
// can test for that single sentinel. Failures of the invoked target
// itself are carried by *TargetError and are never folded into the
// argument errors.

var (
	// ErrResolution indicates a descriptor could not be turned into a
	// usable handle: the owner type is not registered, the member no
	// longer exists, or a caller was refused a binding. Not retryable.
	ErrResolution = errors.New("accessor: resolution failed")

	// ErrInvalidArgument is the broad class covering receiver and
	// argument problems. It is never returned bare; one of the two
	// wrapping sentinels below is.
	ErrInvalidArgument = errors.New("accessor: invalid argument")

	// ErrTypeMismatch reports an incompatible receiver, argument, or
	// field value, including narrowing write attempts.
	ErrTypeMismatch = fmt.Errorf("%w: type mismatch", ErrInvalidArgument)

	// ErrNilReceiver reports a nil receiver supplied to an instance member.
	ErrNilReceiver = fmt.Errorf("%w: nil receiver", ErrInvalidArgument)

	// ErrImmutable reports a write attempt on a read-only field.
	ErrImmutable = errors.New("accessor: field is read-only")

	// ErrInternal indicates a state that correct descriptors cannot
	// reach, such as a coercion table miss. A defect, not a user error.
	ErrInternal = errors.New("accessor: internal inconsistency")
)

// TargetError wraps a failure raised by the invoked target itself.
// The original cause keeps its identity: errors.Is and errors.As see
// through the wrapper. It is never reclassified as an argument error.
type TargetError struct {
	Key   string // descriptor key of the failing target
	Cause error
}

// Error implements the error interface.
func (e *TargetError) Error() string {
	return fmt.Sprintf("accessor: target %s failed: %v", e.Key, e.Cause)
}

// Unwrap returns the original failure.
func (e *TargetError) Unwrap() error {
	return e.Cause
}

// NewTargetError wraps err as a failure of the target identified by key.
func NewTargetError(key string, err error) *TargetError {
	return &TargetError{Key: key, Cause: err}
}
