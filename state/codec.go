package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrUnknownVersion = errors.New("state: unknown blob version")
	ErrTruncated      = errors.New("state: truncated blob")
	ErrMalformed      = errors.New("state: malformed blob")
)

// Versioned is implemented by every state blob.
type Versioned interface {
	SchemaVersion() uint8
}

// Encode returns version || rlp(v).
func Encode(v Versioned) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, fmt.Errorf("state: encode %T: %w", v, err)
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, v.SchemaVersion())
	return append(out, payload...), nil
}

// Decode parses a blob produced by Encode into v, which must be a
// pointer. Every field of the version must be present.
func Decode(blob []byte, v Versioned) error {
	if len(blob) < 2 {
		return fmt.Errorf("%w: %T: %d bytes", ErrTruncated, v, len(blob))
	}
	if blob[0] != v.SchemaVersion() {
		return fmt.Errorf("%w: %T: got %d, want %d", ErrUnknownVersion, v, blob[0], v.SchemaVersion())
	}
	if err := rlp.DecodeBytes(blob[1:], v); err != nil {
		return fmt.Errorf("%w: %T: %v", ErrMalformed, v, err)
	}
	return nil
}
