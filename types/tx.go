package types

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// TransactionNamespace prefixes every signed payload so a transaction
// signature can never be replayed as a signature in another context.
const TransactionNamespace = "_NULLSPACE_TX"

// Transaction is a signed instruction from one account. It is
// immutable once signed.
type Transaction struct {
	Public      PublicKey   `cramberry:"1"`
	Nonce       uint64      `cramberry:"2"`
	Instruction Instruction `cramberry:"3"`
	Signature   Signature   `cramberry:"4"`
}

type signingPayload struct {
	Nonce       uint64      `cramberry:"1"`
	Instruction Instruction `cramberry:"2"`
}

// SigningBytes returns the canonical bytes an account signs for
// (nonce, instruction).
func SigningBytes(nonce uint64, instr Instruction) ([]byte, error) {
	body, err := cramberry.Marshal(signingPayload{Nonce: nonce, Instruction: instr})
	if err != nil {
		return nil, fmt.Errorf("encode signing payload: %w", err)
	}
	out := make([]byte, 0, len(TransactionNamespace)+len(body))
	out = append(out, TransactionNamespace...)
	return append(out, body...), nil
}

// SignTransaction signs instr at nonce with priv.
func SignTransaction(priv ed25519.PrivateKey, nonce uint64, instr Instruction) (Transaction, error) {
	msg, err := SigningBytes(nonce, instr)
	if err != nil {
		return Transaction{}, err
	}
	tx := Transaction{Nonce: nonce, Instruction: instr}
	copy(tx.Public[:], priv.Public().(ed25519.PublicKey))
	copy(tx.Signature[:], ed25519.Sign(priv, msg))
	return tx, nil
}

// Verify reports whether the signature covers the canonical encoding
// of the nonce and instruction under Public.
func (tx Transaction) Verify() bool {
	msg, err := SigningBytes(tx.Nonce, tx.Instruction)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(tx.Public[:]), msg, tx.Signature[:])
}

// Digest identifies the transaction independently of its signature:
// sha256(nonce || instruction || public). Any valid signature over the
// same content yields the same digest.
func (tx Transaction) Digest() (Hash, error) {
	instr, err := cramberry.Marshal(tx.Instruction)
	if err != nil {
		return Hash{}, fmt.Errorf("encode instruction: %w", err)
	}
	h := sha256.New()
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	h.Write(nonce[:])
	h.Write(instr)
	h.Write(tx.Public[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// EncodeTransaction returns the cramberry encoding of tx.
func EncodeTransaction(tx Transaction) ([]byte, error) {
	return cramberry.Marshal(tx)
}

// DecodeTransaction parses a cramberry-encoded transaction.
func DecodeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	if err := cramberry.Unmarshal(data, &tx); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
