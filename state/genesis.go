package state

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/blockberries/nullspace/types"
)

// MinimumLiquidity is the number of pool shares permanently locked on
// the first deposit so the share price can never be driven to zero.
const MinimumLiquidity uint64 = 1000

// WriteGenesis stages the height-0 state described by doc.
func WriteGenesis(w View, doc types.GenesisDoc) error {
	if err := doc.Config.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if err := Store(w, ConfigKey, doc.Config); err != nil {
		return err
	}
	seen := make(map[types.PublicKey]struct{}, len(doc.Accounts))
	for _, ga := range doc.Accounts {
		if _, dup := seen[ga.Public]; dup {
			return fmt.Errorf("genesis: duplicate account %s", ga.Public)
		}
		seen[ga.Public] = struct{}{}
		if err := StoreAccount(w, ga.Public, types.Account{Chips: ga.Chips, VUSDT: ga.VUSDT}); err != nil {
			return err
		}
	}
	if doc.Pool == nil {
		return nil
	}
	if doc.Pool.ReserveChips == 0 || doc.Pool.ReserveVUSDT == 0 {
		return fmt.Errorf("genesis: pool reserves must be non-zero")
	}
	shares := new(uint256.Int).Mul(uint256.NewInt(doc.Pool.ReserveChips), uint256.NewInt(doc.Pool.ReserveVUSDT))
	shares.Sqrt(shares)
	if !shares.IsUint64() || shares.Uint64() <= MinimumLiquidity {
		return fmt.Errorf("genesis: initial pool liquidity too small")
	}
	// Genesis shares belong to no account and stay locked.
	return StorePool(w, types.AmmPool{
		ReserveChips: doc.Pool.ReserveChips,
		ReserveVUSDT: doc.Pool.ReserveVUSDT,
		TotalShares:  shares.Uint64(),
		FeeBps:       doc.Config.AmmFeeBps,
		SellTaxBps:   doc.Config.SellTaxBps,
	})
}
