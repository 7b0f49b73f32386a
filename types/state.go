package types

import "fmt"

// State blobs. Each type is stored as a version byte followed by the
// RLP encoding of its fields; see the state package. Field order is
// part of the encoding, so new fields go at the end under a new
// version.

const (
	AccountVersion     uint8 = 1
	PlayerVersion      uint8 = 1
	SessionVersion     uint8 = 1
	HouseVersion       uint8 = 1
	StakerVersion      uint8 = 1
	VaultVersion       uint8 = 1
	AmmPoolVersion     uint8 = 1
	LpBalanceVersion   uint8 = 1
	ChainConfigVersion uint8 = 1
)

// Account holds the nonce and balances of one public key.
type Account struct {
	Nonce uint64 `cramberry:"1"`
	Chips uint64 `cramberry:"2"`
	VUSDT uint64 `cramberry:"3"`
}

func (Account) SchemaVersion() uint8 { return AccountVersion }

// Player is the casino profile of a registered account.
type Player struct {
	Name           string `cramberry:"1"`
	PendingWager   uint64 `cramberry:"2"`
	ActiveSession  uint64 `cramberry:"3"`
	SessionsPlayed uint64 `cramberry:"4"`
	TotalWagered   uint64 `cramberry:"5"`
	TotalWon       uint64 `cramberry:"6"`
}

func (Player) SchemaVersion() uint8 { return PlayerVersion }

// Session is one game in progress or completed. State is the game's
// own packed, versioned blob; Seed advances with every move.
type Session struct {
	ID        uint64    `cramberry:"1"`
	Player    PublicKey `cramberry:"2"`
	Game      GameType  `cramberry:"3"`
	Bet       uint64    `cramberry:"4"`
	Seed      Hash      `cramberry:"5"`
	State     []byte    `cramberry:"6"`
	Moves     uint32    `cramberry:"7"`
	CreatedAt uint64    `cramberry:"8"`
	Complete  bool      `cramberry:"9"`
	Payout    uint64    `cramberry:"10"`
}

func (Session) SchemaVersion() uint8 { return SessionVersion }

// House aggregates casino, staking and AMM totals.
type House struct {
	CurrentEpoch     uint64 `cramberry:"1"`
	EpochStart       uint64 `cramberry:"2"`
	EpochWagered     uint64 `cramberry:"3"`
	EpochPaidOut     uint64 `cramberry:"4"`
	TotalWagered     uint64 `cramberry:"5"`
	TotalPaidOut     uint64 `cramberry:"6"`
	TotalStaked      uint64 `cramberry:"7"`
	TotalVotingPower uint64 `cramberry:"8"`
	RewardIndex      uint64 `cramberry:"9"`
	RewardPool       uint64 `cramberry:"10"`
	AccumulatedFees  uint64 `cramberry:"11"`
	TotalBurned      uint64 `cramberry:"12"`
}

func (House) SchemaVersion() uint8 { return HouseVersion }

// Staker is one account's locked stake.
type Staker struct {
	Balance      uint64 `cramberry:"1"`
	UnlockHeight uint64 `cramberry:"2"`
	VotingPower  uint64 `cramberry:"3"`
	RewardIndex  uint64 `cramberry:"4"`
	Claimed      uint64 `cramberry:"5"`
}

func (Staker) SchemaVersion() uint8 { return StakerVersion }

// Vault is a collateralised vUSDT debt position.
type Vault struct {
	Collateral uint64 `cramberry:"1"`
	Debt       uint64 `cramberry:"2"`
}

func (Vault) SchemaVersion() uint8 { return VaultVersion }

// AmmPool is the single chips/vUSDT constant-product pool.
type AmmPool struct {
	ReserveChips uint64 `cramberry:"1"`
	ReserveVUSDT uint64 `cramberry:"2"`
	TotalShares  uint64 `cramberry:"3"`
	FeeBps       uint32 `cramberry:"4"`
	SellTaxBps   uint32 `cramberry:"5"`
}

func (AmmPool) SchemaVersion() uint8 { return AmmPoolVersion }

// LpBalance is an account's share of the AMM pool.
type LpBalance struct {
	Shares uint64 `cramberry:"1"`
}

func (LpBalance) SchemaVersion() uint8 { return LpBalanceVersion }

// ChainConfig is written once at genesis and read by handlers, so
// every node gates features identically.
type ChainConfig struct {
	CasinoEnabled    bool   `cramberry:"1" yaml:"casino_enabled"`
	StakingEnabled   bool   `cramberry:"2" yaml:"staking_enabled"`
	LiquidityEnabled bool   `cramberry:"3" yaml:"liquidity_enabled"`
	MaxDeposit       uint64 `cramberry:"4" yaml:"max_deposit"`
	EpochLength      uint64 `cramberry:"5" yaml:"epoch_length"`
	AmmFeeBps        uint32 `cramberry:"6" yaml:"amm_fee_bps"`
	SellTaxBps       uint32 `cramberry:"7" yaml:"sell_tax_bps"`
}

func (ChainConfig) SchemaVersion() uint8 { return ChainConfigVersion }

// MaxBps is the denominator of every basis-point parameter.
const MaxBps = 10_000

// Validate rejects basis-point parameters above MaxBps.
func (c ChainConfig) Validate() error {
	if c.AmmFeeBps > MaxBps {
		return fmt.Errorf("amm_fee_bps %d exceeds %d", c.AmmFeeBps, MaxBps)
	}
	if c.SellTaxBps > MaxBps {
		return fmt.Errorf("sell_tax_bps %d exceeds %d", c.SellTaxBps, MaxBps)
	}
	return nil
}

// DefaultChainConfig enables every domain.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		CasinoEnabled:    true,
		StakingEnabled:   true,
		LiquidityEnabled: true,
		MaxDeposit:       1_000_000,
		EpochLength:      100,
		AmmFeeBps:        30,
		SellTaxBps:       0,
	}
}
