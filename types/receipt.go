package types

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/ethereum/go-ethereum/crypto"
)

// Receipt records the deterministic outcome of one transaction.
type Receipt struct {
	TxDigest      Hash   `cramberry:"1"`
	Success       bool   `cramberry:"2"`
	PostStateRoot Hash   `cramberry:"3"`
	Code          uint32 `cramberry:"4"`
	Error         string `cramberry:"5"`
}

// Receipt codes. Zero is success; domain handlers use codes at or
// above CodeDomainBase.
const (
	CodeOK uint32 = iota
	CodeInvalidNonce
	CodeInvalidSignature
	CodeUnsupportedVersion
	CodeMalformed

	CodeDomainBase uint32 = 100
)

// ReceiptsRoot folds the receipts of a block, in order, into one
// commitment: h_i = keccak256(h_{i-1} || encode(receipt_i)).
func ReceiptsRoot(receipts []Receipt) (Hash, error) {
	var acc Hash
	for i, r := range receipts {
		enc, err := cramberry.Marshal(r)
		if err != nil {
			return Hash{}, fmt.Errorf("encode receipt %d: %w", i, err)
		}
		acc = Hash(crypto.Keccak256Hash(acc[:], enc))
	}
	return acc, nil
}

// ReceiptsEqual compares two receipt sequences by value.
func ReceiptsEqual(a, b []Receipt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
