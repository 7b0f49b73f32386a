package types

import (
	"errors"
	"fmt"
)

// InstructionVersion is the only instruction layout this build
// understands. Instructions carrying any other version are refused.
const InstructionVersion uint8 = 1

// MaxNameLength bounds casino display names.
const MaxNameLength = 32

var (
	ErrUnsupportedInstructionVersion = errors.New("unsupported instruction version")
	ErrMalformedInstruction          = errors.New("malformed instruction")
)

// Domain identifies the handler family an instruction belongs to.
type Domain uint8

const (
	DomainCasino Domain = iota + 1
	DomainStaking
	DomainLiquidity
)

func (d Domain) String() string {
	switch d {
	case DomainCasino:
		return "casino"
	case DomainStaking:
		return "staking"
	case DomainLiquidity:
		return "liquidity"
	default:
		return fmt.Sprintf("unknown(%d)", d)
	}
}

// Instruction is a closed tagged variant: exactly one of the domain
// arms is set.
type Instruction struct {
	Version   uint8                 `cramberry:"1"`
	Casino    *CasinoInstruction    `cramberry:"2"`
	Staking   *StakingInstruction   `cramberry:"3"`
	Liquidity *LiquidityInstruction `cramberry:"4"`
}

// Domain returns the arm that is set, or ErrMalformedInstruction if
// zero or several arms are set.
func (i Instruction) Domain() (Domain, error) {
	var (
		d Domain
		n int
	)
	if i.Casino != nil {
		d, n = DomainCasino, n+1
	}
	if i.Staking != nil {
		d, n = DomainStaking, n+1
	}
	if i.Liquidity != nil {
		d, n = DomainLiquidity, n+1
	}
	if n != 1 {
		return 0, fmt.Errorf("%w: %d arms set", ErrMalformedInstruction, n)
	}
	return d, nil
}

// Validate checks the version tag and the bounds of the set arm.
func (i Instruction) Validate() error {
	if i.Version != InstructionVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedInstructionVersion, i.Version)
	}
	d, err := i.Domain()
	if err != nil {
		return err
	}
	switch d {
	case DomainCasino:
		return i.Casino.validate()
	case DomainStaking:
		return i.Staking.validate()
	default:
		return i.Liquidity.validate()
	}
}

// GameType selects a casino game rule table.
type GameType uint8

const (
	GameCoinFlip GameType = iota + 1
	GameHiLo
	GameDice
)

func (g GameType) String() string {
	switch g {
	case GameCoinFlip:
		return "coinflip"
	case GameHiLo:
		return "hilo"
	case GameDice:
		return "dice"
	default:
		return fmt.Sprintf("game(%d)", g)
	}
}

// CasinoOp enumerates casino instructions.
type CasinoOp uint8

const (
	CasinoRegister CasinoOp = iota + 1
	CasinoDeposit
	CasinoPlaceBet
	CasinoStartGame
	CasinoGameMove
)

// CasinoInstruction carries the fields of every casino op; each op
// reads only the fields it needs.
type CasinoInstruction struct {
	Op        CasinoOp `cramberry:"1"`
	Name      string   `cramberry:"2"`
	Amount    uint64   `cramberry:"3"`
	Game      GameType `cramberry:"4"`
	SessionID uint64   `cramberry:"5"`
	Move      uint8    `cramberry:"6"`
}

func (c *CasinoInstruction) validate() error {
	switch c.Op {
	case CasinoRegister:
		if len(c.Name) == 0 || len(c.Name) > MaxNameLength {
			return fmt.Errorf("%w: name length %d", ErrMalformedInstruction, len(c.Name))
		}
	case CasinoDeposit, CasinoPlaceBet, CasinoStartGame, CasinoGameMove:
	default:
		return fmt.Errorf("%w: casino op %d", ErrMalformedInstruction, c.Op)
	}
	return nil
}

// StakingOp enumerates staking instructions.
type StakingOp uint8

const (
	StakingStake StakingOp = iota + 1
	StakingUnstake
	StakingClaimRewards
	StakingProcessEpoch
)

type StakingInstruction struct {
	Op       StakingOp `cramberry:"1"`
	Amount   uint64    `cramberry:"2"`
	Duration uint64    `cramberry:"3"`
}

func (s *StakingInstruction) validate() error {
	if s.Op < StakingStake || s.Op > StakingProcessEpoch {
		return fmt.Errorf("%w: staking op %d", ErrMalformedInstruction, s.Op)
	}
	return nil
}

// LiquidityOp enumerates vault and AMM instructions.
type LiquidityOp uint8

const (
	LiquidityCreateVault LiquidityOp = iota + 1
	LiquidityDepositCollateral
	LiquidityBorrow
	LiquidityRepay
	LiquiditySwap
	LiquidityAddLiquidity
	LiquidityRemoveLiquidity
)

type LiquidityInstruction struct {
	Op LiquidityOp `cramberry:"1"`
	// Amount is the chips amount (collateral, swap input, liquidity)
	// or the vUSDT amount for Borrow and Repay.
	Amount       uint64 `cramberry:"2"`
	VUSDT        uint64 `cramberry:"3"`
	MinAmountOut uint64 `cramberry:"4"`
	BuyChips     bool   `cramberry:"5"`
	Shares       uint64 `cramberry:"6"`
}

func (l *LiquidityInstruction) validate() error {
	if l.Op < LiquidityCreateVault || l.Op > LiquidityRemoveLiquidity {
		return fmt.Errorf("%w: liquidity op %d", ErrMalformedInstruction, l.Op)
	}
	return nil
}

// Convenience constructors.

func NewCasino(c CasinoInstruction) Instruction {
	return Instruction{Version: InstructionVersion, Casino: &c}
}

func NewStaking(s StakingInstruction) Instruction {
	return Instruction{Version: InstructionVersion, Staking: &s}
}

func NewLiquidity(l LiquidityInstruction) Instruction {
	return Instruction{Version: InstructionVersion, Liquidity: &l}
}
