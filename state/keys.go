// Package state derives store keys and encodes the versioned blobs
// kept under them.
//
// Keys are keccak256(namespace || identifier). Values are a schema
// version byte followed by the RLP encoding of the blob. Decoding is
// fail-closed: an unknown version or a short payload is an error, never
// a zero-valued field.
package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blockberries/nullspace/types"
)

// Namespace separates key spaces.
type Namespace uint8

const (
	NamespaceAccount   Namespace = 0
	NamespaceConfig    Namespace = 1
	NamespacePlayer    Namespace = 10
	NamespaceSession   Namespace = 11
	NamespaceHouse     Namespace = 14
	NamespaceStaker    Namespace = 15
	NamespaceVault     Namespace = 16
	NamespaceAmmPool   Namespace = 17
	NamespaceLpBalance Namespace = 18
)

// DeriveKey hashes a namespace and identifier parts into a key.
func DeriveKey(ns Namespace, parts ...[]byte) types.Key {
	buf := make([][]byte, 0, len(parts)+1)
	buf = append(buf, []byte{byte(ns)})
	buf = append(buf, parts...)
	return types.Key(crypto.Keccak256Hash(buf...))
}

func AccountKey(pk types.PublicKey) types.Key { return DeriveKey(NamespaceAccount, pk[:]) }

func PlayerKey(pk types.PublicKey) types.Key { return DeriveKey(NamespacePlayer, pk[:]) }

func SessionKey(pk types.PublicKey, id uint64) types.Key {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return DeriveKey(NamespaceSession, pk[:], b[:])
}

func StakerKey(pk types.PublicKey) types.Key { return DeriveKey(NamespaceStaker, pk[:]) }

func VaultKey(pk types.PublicKey) types.Key { return DeriveKey(NamespaceVault, pk[:]) }

func LpBalanceKey(pk types.PublicKey) types.Key { return DeriveKey(NamespaceLpBalance, pk[:]) }

// Singletons.
var (
	ConfigKey  = DeriveKey(NamespaceConfig)
	HouseKey   = DeriveKey(NamespaceHouse)
	AmmPoolKey = DeriveKey(NamespaceAmmPool)
)
