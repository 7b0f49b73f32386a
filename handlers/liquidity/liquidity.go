// Package liquidity implements collateral vaults that borrow vUSDT
// against chips, and the constant-product chips/vUSDT pool.
package liquidity

import (
	"github.com/holiman/uint256"

	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

const (
	// BpsScale is the denominator of fee and tax basis points.
	BpsScale = types.MaxBps
	// MaxLTVBps is the largest debt a vault may carry relative to
	// the market value of its collateral.
	MaxLTVBps = 5_000
)

// Handler applies vault and pool instructions.
type Handler struct{}

var _ handlers.Handler = Handler{}

func New() Handler { return Handler{} }

func (Handler) Domain() types.Domain { return types.DomainLiquidity }

func (Handler) Apply(_ handlers.Env, view state.View, signer types.PublicKey, instr types.Instruction) ([]types.Event, error) {
	l := instr.Liquidity
	switch l.Op {
	case types.LiquidityCreateVault:
		return createVault(view, signer)
	case types.LiquidityDepositCollateral:
		return depositCollateral(view, signer, l.Amount)
	case types.LiquidityBorrow:
		return borrow(view, signer, l.Amount)
	case types.LiquidityRepay:
		return repay(view, signer, l.Amount)
	case types.LiquiditySwap:
		return swap(view, signer, l.Amount, l.MinAmountOut, l.BuyChips)
	case types.LiquidityAddLiquidity:
		return addLiquidity(view, signer, l.Amount, l.VUSDT)
	case types.LiquidityRemoveLiquidity:
		return removeLiquidity(view, signer, l.Shares)
	default:
		return nil, handlers.Fail(handlers.CodeInvalidMove, "unknown liquidity op %d", l.Op)
	}
}

func createVault(view state.View, signer types.PublicKey) ([]types.Event, error) {
	if _, exists, err := state.LoadVault(view, signer); err != nil {
		return nil, err
	} else if exists {
		return nil, handlers.Fail(handlers.CodeAlreadyExists, "vault already exists")
	}
	if err := state.StoreVault(view, signer, types.Vault{}); err != nil {
		return nil, err
	}
	return []types.Event{types.NewEvent(types.EventVaultCreated, signer)}, nil
}

func loadVault(view state.View, signer types.PublicKey) (types.Vault, error) {
	v, exists, err := state.LoadVault(view, signer)
	if err != nil {
		return v, err
	}
	if !exists {
		return v, handlers.Fail(handlers.CodeNotFound, "vault not found")
	}
	return v, nil
}

func depositCollateral(view state.View, signer types.PublicKey, amount uint64) ([]types.Event, error) {
	if amount == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "collateral must be positive")
	}
	vault, err := loadVault(view, signer)
	if err != nil {
		return nil, err
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.Chips < amount {
		return nil, handlers.Fail(handlers.CodeInsufficientFunds, "balance %d below collateral %d", acct.Chips, amount)
	}
	if vault.Collateral, err = handlers.AddChecked(vault.Collateral, amount); err != nil {
		return nil, err
	}
	acct.Chips -= amount
	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if err := state.StoreVault(view, signer, vault); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventCollateralDeposited, signer,
			types.Uint("amount", amount),
			types.Uint("collateral", vault.Collateral),
		),
	}, nil
}

// priceRatio is the chips price in vUSDT as num/den. An empty pool
// prices one chip at one vUSDT.
func priceRatio(pool types.AmmPool) (num, den uint64) {
	if pool.ReserveChips == 0 {
		return 1, 1
	}
	return pool.ReserveVUSDT, pool.ReserveChips
}

// withinLTV reports whether debt*BpsScale*den <= collateral*MaxLTVBps*num,
// that is, whether debt stays within MaxLTVBps of the collateral's value.
func withinLTV(debt, collateral uint64, pool types.AmmPool) bool {
	num, den := priceRatio(pool)
	lhs := new(uint256.Int).Mul(uint256.NewInt(debt), uint256.NewInt(den))
	lhs.Mul(lhs, uint256.NewInt(BpsScale))
	rhs := new(uint256.Int).Mul(uint256.NewInt(collateral), uint256.NewInt(num))
	rhs.Mul(rhs, uint256.NewInt(MaxLTVBps))
	return !lhs.Gt(rhs)
}

func borrow(view state.View, signer types.PublicKey, amount uint64) ([]types.Event, error) {
	if amount == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "borrow must be positive")
	}
	vault, err := loadVault(view, signer)
	if err != nil {
		return nil, err
	}
	pool, err := state.LoadPool(view)
	if err != nil {
		return nil, err
	}
	debt, err := handlers.AddChecked(vault.Debt, amount)
	if err != nil {
		return nil, err
	}
	if !withinLTV(debt, vault.Collateral, pool) {
		return nil, handlers.Fail(handlers.CodeInsufficientCollateral, "debt %d exceeds 50%% LTV", debt)
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.VUSDT, err = handlers.AddChecked(acct.VUSDT, amount); err != nil {
		return nil, err
	}
	vault.Debt = debt
	if err := state.StoreVault(view, signer, vault); err != nil {
		return nil, err
	}
	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventVUSDTBorrowed, signer,
			types.Uint("amount", amount),
			types.Uint("debt", debt),
		),
	}, nil
}

// repay burns up to the outstanding debt; any excess stays with the
// account.
func repay(view state.View, signer types.PublicKey, amount uint64) ([]types.Event, error) {
	vault, err := loadVault(view, signer)
	if err != nil {
		return nil, err
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.VUSDT < amount {
		return nil, handlers.Fail(handlers.CodeInsufficientFunds, "vUSDT balance %d below %d", acct.VUSDT, amount)
	}
	paid := min(amount, vault.Debt)
	if paid == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "nothing to repay")
	}
	acct.VUSDT -= paid
	vault.Debt -= paid
	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if err := state.StoreVault(view, signer, vault); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventVUSDTRepaid, signer,
			types.Uint("amount", paid),
			types.Uint("debt", vault.Debt),
		),
	}, nil
}
