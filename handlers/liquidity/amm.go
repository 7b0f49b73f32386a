package liquidity

import (
	"github.com/holiman/uint256"

	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

// Quote is the result of pricing a swap against the pool.
type Quote struct {
	AmountOut uint64
	Fee       uint64
}

// QuoteSwap prices amountIn against the constant-product reserves
// after deducting feeBps. A fee above BpsScale has no valid quote.
func QuoteSwap(amountIn, reserveIn, reserveOut uint64, feeBps uint32) (Quote, bool) {
	if feeBps > BpsScale {
		return Quote{}, false
	}
	fee, ok := handlers.MulDiv(amountIn, uint64(feeBps), BpsScale)
	if !ok || fee > amountIn {
		return Quote{}, false
	}
	netIn := amountIn - fee
	// out = netIn*reserveOut / (reserveIn + netIn)
	den := new(uint256.Int).Add(uint256.NewInt(reserveIn), uint256.NewInt(netIn))
	if den.IsZero() {
		return Quote{}, false
	}
	num := new(uint256.Int).Mul(uint256.NewInt(netIn), uint256.NewInt(reserveOut))
	num.Div(num, den)
	if !num.IsUint64() {
		return Quote{}, false
	}
	return Quote{AmountOut: num.Uint64(), Fee: fee}, true
}

// swap trades chips for vUSDT or the reverse. Selling chips pays the
// sell tax first; the tax is burned. The fee stays in the pool and is
// booked to the house.
func swap(view state.View, signer types.PublicKey, amountIn, minOut uint64, buyChips bool) ([]types.Event, error) {
	if amountIn == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "swap amount must be positive")
	}
	pool, err := state.LoadPool(view)
	if err != nil {
		return nil, err
	}
	if pool.ReserveChips == 0 || pool.ReserveVUSDT == 0 {
		return nil, handlers.Fail(handlers.CodeNoLiquidity, "pool has no liquidity")
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	house, err := state.LoadHouse(view)
	if err != nil {
		return nil, err
	}

	var burned uint64
	netIn := amountIn
	reserveIn, reserveOut := pool.ReserveChips, pool.ReserveVUSDT
	if buyChips {
		reserveIn, reserveOut = pool.ReserveVUSDT, pool.ReserveChips
		if acct.VUSDT < amountIn {
			return nil, handlers.Fail(handlers.CodeInsufficientFunds, "vUSDT balance %d below %d", acct.VUSDT, amountIn)
		}
	} else {
		if acct.Chips < amountIn {
			return nil, handlers.Fail(handlers.CodeInsufficientFunds, "balance %d below %d", acct.Chips, amountIn)
		}
		var ok bool
		burned, ok = handlers.MulDiv(amountIn, uint64(pool.SellTaxBps), BpsScale)
		if !ok || burned > netIn {
			return nil, handlers.Fail(handlers.CodeNoLiquidity, "invalid sell tax %d", pool.SellTaxBps)
		}
		netIn -= burned
	}
	q, ok := QuoteSwap(netIn, reserveIn, reserveOut, pool.FeeBps)
	if !ok {
		return nil, handlers.Fail(handlers.CodeNoLiquidity, "invalid pool state")
	}
	if q.AmountOut < minOut {
		return nil, handlers.Fail(handlers.CodeSlippage, "output %d below minimum %d", q.AmountOut, minOut)
	}
	if q.AmountOut == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "swap too small")
	}

	if buyChips {
		acct.VUSDT -= amountIn
		if acct.Chips, err = handlers.AddChecked(acct.Chips, q.AmountOut); err != nil {
			return nil, err
		}
		if pool.ReserveVUSDT, err = handlers.AddChecked(pool.ReserveVUSDT, netIn); err != nil {
			return nil, err
		}
		pool.ReserveChips -= q.AmountOut
	} else {
		acct.Chips -= amountIn
		if acct.VUSDT, err = handlers.AddChecked(acct.VUSDT, q.AmountOut); err != nil {
			return nil, err
		}
		if pool.ReserveChips, err = handlers.AddChecked(pool.ReserveChips, netIn); err != nil {
			return nil, err
		}
		pool.ReserveVUSDT -= q.AmountOut
	}
	house.AccumulatedFees += q.Fee
	house.TotalBurned += burned

	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if err := state.StorePool(view, pool); err != nil {
		return nil, err
	}
	if err := state.StoreHouse(view, house); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventAmmSwapped, signer,
			types.Bool("buy_chips", buyChips),
			types.Uint("amount_in", amountIn),
			types.Uint("amount_out", q.AmountOut),
			types.Uint("fee", q.Fee),
			types.Uint("burned", burned),
			types.Uint("reserve_chips", pool.ReserveChips),
			types.Uint("reserve_vusdt", pool.ReserveVUSDT),
		),
	}, nil
}

// addLiquidity mints pool shares. The first deposit mints
// sqrt(chips*vusdt) and locks MinimumLiquidity of it forever; later
// deposits mint in proportion to the smaller side.
func addLiquidity(view state.View, signer types.PublicKey, chips, vusdt uint64) ([]types.Event, error) {
	if chips == 0 || vusdt == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "both sides must be positive")
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.Chips < chips || acct.VUSDT < vusdt {
		return nil, handlers.Fail(handlers.CodeInsufficientFunds, "insufficient funds for liquidity")
	}
	pool, err := state.LoadPool(view)
	if err != nil {
		return nil, err
	}

	var minted uint64
	if pool.TotalShares == 0 {
		minted = handlers.Sqrt(chips, vusdt)
		if minted <= state.MinimumLiquidity {
			return nil, handlers.Fail(handlers.CodeInvalidAmount, "initial liquidity too small")
		}
		pool.TotalShares = state.MinimumLiquidity
		minted -= state.MinimumLiquidity
	} else {
		if pool.ReserveChips == 0 || pool.ReserveVUSDT == 0 {
			return nil, handlers.Fail(handlers.CodeNoLiquidity, "pool has no liquidity")
		}
		a, aok := handlers.MulDiv(chips, pool.TotalShares, pool.ReserveChips)
		b, bok := handlers.MulDiv(vusdt, pool.TotalShares, pool.ReserveVUSDT)
		if !aok || !bok {
			return nil, handlers.Fail(handlers.CodeOverflow, "share overflow")
		}
		minted = min(a, b)
	}
	if minted == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "deposit too small")
	}

	lp, err := state.LoadLpBalance(view, signer)
	if err != nil {
		return nil, err
	}
	if lp.Shares, err = handlers.AddChecked(lp.Shares, minted); err != nil {
		return nil, err
	}
	if pool.TotalShares, err = handlers.AddChecked(pool.TotalShares, minted); err != nil {
		return nil, err
	}
	if pool.ReserveChips, err = handlers.AddChecked(pool.ReserveChips, chips); err != nil {
		return nil, err
	}
	if pool.ReserveVUSDT, err = handlers.AddChecked(pool.ReserveVUSDT, vusdt); err != nil {
		return nil, err
	}
	acct.Chips -= chips
	acct.VUSDT -= vusdt

	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if err := state.StoreLpBalance(view, signer, lp); err != nil {
		return nil, err
	}
	if err := state.StorePool(view, pool); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventLiquidityAdded, signer,
			types.Uint("chips", chips),
			types.Uint("vusdt", vusdt),
			types.Uint("shares", minted),
			types.Uint("total_shares", pool.TotalShares),
		),
	}, nil
}

// removeLiquidity burns shares for a pro-rata share of both reserves.
func removeLiquidity(view state.View, signer types.PublicKey, shares uint64) ([]types.Event, error) {
	if shares == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "shares must be positive")
	}
	lp, err := state.LoadLpBalance(view, signer)
	if err != nil {
		return nil, err
	}
	if lp.Shares < shares {
		return nil, handlers.Fail(handlers.CodeInsufficientFunds, "holding %d shares, burning %d", lp.Shares, shares)
	}
	pool, err := state.LoadPool(view)
	if err != nil {
		return nil, err
	}
	if pool.TotalShares <= shares {
		return nil, handlers.Fail(handlers.CodeNoLiquidity, "pool share accounting broken")
	}
	chipsOut, _ := handlers.MulDiv(shares, pool.ReserveChips, pool.TotalShares)
	vusdtOut, _ := handlers.MulDiv(shares, pool.ReserveVUSDT, pool.TotalShares)
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.Chips, err = handlers.AddChecked(acct.Chips, chipsOut); err != nil {
		return nil, err
	}
	if acct.VUSDT, err = handlers.AddChecked(acct.VUSDT, vusdtOut); err != nil {
		return nil, err
	}
	lp.Shares -= shares
	pool.TotalShares -= shares
	pool.ReserveChips -= chipsOut
	pool.ReserveVUSDT -= vusdtOut

	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if lp.Shares == 0 {
		err = view.Delete(state.LpBalanceKey(signer))
	} else {
		err = state.StoreLpBalance(view, signer, lp)
	}
	if err != nil {
		return nil, err
	}
	if err := state.StorePool(view, pool); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventLiquidityRemoved, signer,
			types.Uint("shares", shares),
			types.Uint("chips", chipsOut),
			types.Uint("vusdt", vusdtOut),
		),
	}, nil
}
