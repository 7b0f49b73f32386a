package state

import (
	"bytes"

	"github.com/blockberries/nullspace/types"
)

// MemView is a map-backed View with no authentication, for tests and
// tooling.
type MemView map[types.Key][]byte

var _ View = MemView(nil)

func (m MemView) Get(k types.Key) ([]byte, error) { return m[k], nil }

func (m MemView) Insert(k types.Key, v []byte) error {
	m[k] = bytes.Clone(v)
	return nil
}

func (m MemView) Delete(k types.Key) error {
	delete(m, k)
	return nil
}
