// Package types defines the core data types of the nullspace ledger.
//
// Wire types are plain Go structs with cramberry struct tags for
// deterministic binary serialization. State blobs (accounts, sessions,
// pools) additionally encode through RLP inside the state package;
// transport concerns are handled in the transport packages.
package types

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte cryptographic hash.
type Hash [32]byte

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether the hash is all zeroes.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// BytesToHash converts b to a Hash, left-padding or cropping
// from the left if b is not exactly 32 bytes.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

// Key addresses one entry of the authenticated store. It is the
// keccak256 of a namespace tag followed by an identifier.
type Key [32]byte

func (k Key) Bytes() []byte { return k[:] }

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// PublicKey is an ed25519 account identity.
type PublicKey [32]byte

func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

// ParsePublicKey decodes a hex-encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("public key: %w", err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("public key: want %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// Signature is an ed25519 signature.
type Signature [64]byte

// BlockID uniquely identifies a committed point in the chain.
type BlockID struct {
	Height uint64 `cramberry:"1"`
	Root   Hash   `cramberry:"2"`
}
