package state

import (
	"errors"
	"fmt"

	"github.com/blockberries/nullspace/types"
)

// ErrMissingConfig means the chain configuration was never written;
// the store was not initialised from a genesis document.
var ErrMissingConfig = errors.New("state: chain config not found")

// Reader reads raw values. A nil value with a nil error means the key
// is absent; storage failures must be returned as errors.
type Reader interface {
	Get(key types.Key) ([]byte, error)
}

// Writer stages raw mutations.
type Writer interface {
	Insert(key types.Key, value []byte) error
	Delete(key types.Key) error
}

// View is the read/write surface handed to instruction handlers.
type View interface {
	Reader
	Writer
}

// Load decodes the blob at key into a T. The bool is false if the
// key is absent.
func Load[T any, P interface {
	*T
	Versioned
}](r Reader, key types.Key) (T, bool, error) {
	var v T
	blob, err := r.Get(key)
	if err != nil {
		return v, false, err
	}
	if blob == nil {
		return v, false, nil
	}
	if err := Decode(blob, P(&v)); err != nil {
		return v, false, fmt.Errorf("key %s: %w", key, err)
	}
	return v, true, nil
}

// Store encodes v and stages it at key.
func Store(w Writer, key types.Key, v Versioned) error {
	blob, err := Encode(v)
	if err != nil {
		return err
	}
	return w.Insert(key, blob)
}

// LoadAccount returns the account of pk. A missing account is the
// zero account at nonce 0.
func LoadAccount(r Reader, pk types.PublicKey) (types.Account, error) {
	acct, _, err := Load[types.Account](r, AccountKey(pk))
	return acct, err
}

func StoreAccount(w Writer, pk types.PublicKey, acct types.Account) error {
	return Store(w, AccountKey(pk), acct)
}

func LoadPlayer(r Reader, pk types.PublicKey) (types.Player, bool, error) {
	return Load[types.Player](r, PlayerKey(pk))
}

func StorePlayer(w Writer, pk types.PublicKey, p types.Player) error {
	return Store(w, PlayerKey(pk), p)
}

func LoadSession(r Reader, pk types.PublicKey, id uint64) (types.Session, bool, error) {
	return Load[types.Session](r, SessionKey(pk, id))
}

func StoreSession(w Writer, s types.Session) error {
	return Store(w, SessionKey(s.Player, s.ID), s)
}

// LoadHouse returns the house totals, zero before first use.
func LoadHouse(r Reader) (types.House, error) {
	h, _, err := Load[types.House](r, HouseKey)
	return h, err
}

func StoreHouse(w Writer, h types.House) error {
	return Store(w, HouseKey, h)
}

func LoadStaker(r Reader, pk types.PublicKey) (types.Staker, bool, error) {
	return Load[types.Staker](r, StakerKey(pk))
}

func StoreStaker(w Writer, pk types.PublicKey, s types.Staker) error {
	return Store(w, StakerKey(pk), s)
}

func LoadVault(r Reader, pk types.PublicKey) (types.Vault, bool, error) {
	return Load[types.Vault](r, VaultKey(pk))
}

func StoreVault(w Writer, pk types.PublicKey, v types.Vault) error {
	return Store(w, VaultKey(pk), v)
}

// LoadPool returns the AMM pool; before first use it is empty with
// fees taken from the chain config.
func LoadPool(r Reader) (types.AmmPool, error) {
	pool, ok, err := Load[types.AmmPool](r, AmmPoolKey)
	if err != nil || ok {
		return pool, err
	}
	cfg, err := LoadConfig(r)
	if err != nil {
		return pool, err
	}
	return types.AmmPool{FeeBps: cfg.AmmFeeBps, SellTaxBps: cfg.SellTaxBps}, nil
}

func StorePool(w Writer, p types.AmmPool) error {
	return Store(w, AmmPoolKey, p)
}

func LoadLpBalance(r Reader, pk types.PublicKey) (types.LpBalance, error) {
	lp, _, err := Load[types.LpBalance](r, LpBalanceKey(pk))
	return lp, err
}

func StoreLpBalance(w Writer, pk types.PublicKey, lp types.LpBalance) error {
	return Store(w, LpBalanceKey(pk), lp)
}

// LoadConfig returns the chain config written at genesis.
func LoadConfig(r Reader) (types.ChainConfig, error) {
	cfg, ok, err := Load[types.ChainConfig](r, ConfigKey)
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, ErrMissingConfig
	}
	return cfg, nil
}
