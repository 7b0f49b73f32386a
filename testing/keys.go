package nullspacetest

import (
	"crypto/ed25519"
	"testing"

	"github.com/blockberries/nullspace/types"
)

// Key returns a deterministic ed25519 key derived from seed.
func Key(seed byte) ed25519.PrivateKey {
	var s [ed25519.SeedSize]byte
	s[0] = seed
	s[ed25519.SeedSize-1] = 0x5a
	return ed25519.NewKeyFromSeed(s[:])
}

// Pub returns the account public key of priv.
func Pub(priv ed25519.PrivateKey) types.PublicKey {
	var pk types.PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs instr at nonce, failing the test on error.
func Sign(t testing.TB, priv ed25519.PrivateKey, nonce uint64, instr types.Instruction) types.Transaction {
	t.Helper()
	tx, err := types.SignTransaction(priv, nonce, instr)
	if err != nil {
		t.Fatalf("sign transaction: %v", err)
	}
	return tx
}

// --- Instruction builders ---

func Register(name string) types.Instruction {
	return types.NewCasino(types.CasinoInstruction{Op: types.CasinoRegister, Name: name})
}

func Deposit(amount uint64) types.Instruction {
	return types.NewCasino(types.CasinoInstruction{Op: types.CasinoDeposit, Amount: amount})
}

func PlaceBet(amount uint64) types.Instruction {
	return types.NewCasino(types.CasinoInstruction{Op: types.CasinoPlaceBet, Amount: amount})
}

// StartGame opens session id, wagering the pending bet.
func StartGame(game types.GameType, session uint64) types.Instruction {
	return types.NewCasino(types.CasinoInstruction{Op: types.CasinoStartGame, Game: game, SessionID: session})
}

func GameMove(session uint64, move uint8) types.Instruction {
	return types.NewCasino(types.CasinoInstruction{Op: types.CasinoGameMove, SessionID: session, Move: move})
}

func Stake(amount, duration uint64) types.Instruction {
	return types.NewStaking(types.StakingInstruction{Op: types.StakingStake, Amount: amount, Duration: duration})
}

func Swap(amountIn, minOut uint64, buyChips bool) types.Instruction {
	return types.NewLiquidity(types.LiquidityInstruction{
		Op:           types.LiquiditySwap,
		Amount:       amountIn,
		MinAmountOut: minOut,
		BuyChips:     buyChips,
	})
}
