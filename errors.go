package nullspace

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrderHeight is matched by every *OutOfOrderHeightError.
	ErrOutOfOrderHeight = errors.New("block height out of order")
	// ErrParentRootMismatch means a block does not extend the
	// committed root.
	ErrParentRootMismatch = errors.New("parent root mismatch")
	// ErrNotReady is returned before Handshake completes.
	ErrNotReady = errors.New("ledger not ready")
)

// HaltError signals that the ledger detected an irrecoverable
// inconsistency and can make no further progress.
//
// When the engine receives a HaltError from ApplyBlock it must stop
// consensus and exit. The ledger rejects every later block with the
// same error.
type HaltError struct {
	Reason string
	Height uint64
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("HALT at height %d: %s", e.Height, e.Reason)
}

// NewHaltError creates a new HaltError.
func NewHaltError(height uint64, reason string) *HaltError {
	return &HaltError{Height: height, Reason: reason}
}

// IsHalt checks whether an error is a HaltError and returns it.
func IsHalt(err error) (*HaltError, bool) {
	var h *HaltError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}

// OutOfOrderHeightError reports a block that is neither the next
// height nor a redelivery of the last one.
type OutOfOrderHeightError struct {
	Expected uint64
	Got      uint64
}

func (e *OutOfOrderHeightError) Error() string {
	return fmt.Sprintf("block height out of order: expected %d, got %d", e.Expected, e.Got)
}

func (e *OutOfOrderHeightError) Is(target error) bool {
	return target == ErrOutOfOrderHeight
}
