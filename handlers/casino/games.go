package casino

import (
	"fmt"
	"sort"

	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

// Outcome is the result of one move.
type Outcome struct {
	Complete bool
	Payout   uint64
}

// Game is a pluggable rule table. State is the game's own versioned
// blob; Init and Move must be pure over their inputs.
type Game interface {
	Type() types.GameType
	Init(bet uint64, rng *Rand) ([]byte, error)
	Move(st []byte, move uint8, bet uint64, rng *Rand) ([]byte, Outcome, error)
}

// Registry maps game types to rule tables.
type Registry struct {
	games map[types.GameType]Game
}

func NewRegistry(games ...Game) *Registry {
	r := &Registry{games: make(map[types.GameType]Game, len(games))}
	for _, g := range games {
		r.games[g.Type()] = g
	}
	return r
}

// DefaultRegistry holds every built-in game.
func DefaultRegistry() *Registry {
	return NewRegistry(CoinFlip{}, HiLo{}, Dice{})
}

func (r *Registry) Lookup(t types.GameType) (Game, bool) {
	g, ok := r.games[t]
	return g, ok
}

// Types lists the registered games in ascending order.
func (r *Registry) Types() []types.GameType {
	out := make([]types.GameType, 0, len(r.games))
	for t := range r.games {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func payout(bet, num, den uint64) (uint64, error) {
	v, ok := handlers.MulDiv(bet, num, den)
	if !ok {
		return 0, handlers.Fail(handlers.CodeOverflow, "payout overflow")
	}
	return v, nil
}

// CoinFlip settles in one move: 0 calls heads, 1 tails. A correct call
// pays double.
type CoinFlip struct{}

type coinFlipState struct {
	Result uint8
}

func (coinFlipState) SchemaVersion() uint8 { return 1 }

func (CoinFlip) Type() types.GameType { return types.GameCoinFlip }

func (CoinFlip) Init(uint64, *Rand) ([]byte, error) {
	return state.Encode(coinFlipState{Result: 0xFF})
}

func (CoinFlip) Move(st []byte, move uint8, bet uint64, rng *Rand) ([]byte, Outcome, error) {
	var s coinFlipState
	if err := state.Decode(st, &s); err != nil {
		return nil, Outcome{}, err
	}
	if move > 1 {
		return nil, Outcome{}, handlers.Fail(handlers.CodeInvalidMove, "coin flip call must be 0 or 1, got %d", move)
	}
	s.Result = uint8(rng.Intn(2))
	next, err := state.Encode(s)
	if err != nil {
		return nil, Outcome{}, err
	}
	out := Outcome{Complete: true}
	if s.Result == move {
		if out.Payout, err = payout(bet, 2, 1); err != nil {
			return nil, Outcome{}, err
		}
	}
	return next, out, nil
}

// Dice is roll-under: the move is a target in [1, 95] and a roll in
// [0, 100) below it pays bet*99/target.
type Dice struct{}

type diceState struct {
	Roll uint8
}

func (diceState) SchemaVersion() uint8 { return 1 }

const (
	diceMinTarget = 1
	diceMaxTarget = 95
)

func (Dice) Type() types.GameType { return types.GameDice }

func (Dice) Init(uint64, *Rand) ([]byte, error) {
	return state.Encode(diceState{Roll: 0xFF})
}

func (Dice) Move(st []byte, move uint8, bet uint64, rng *Rand) ([]byte, Outcome, error) {
	var s diceState
	if err := state.Decode(st, &s); err != nil {
		return nil, Outcome{}, err
	}
	if move < diceMinTarget || move > diceMaxTarget {
		return nil, Outcome{}, handlers.Fail(handlers.CodeInvalidMove, "dice target %d out of range", move)
	}
	s.Roll = uint8(rng.Intn(100))
	next, err := state.Encode(s)
	if err != nil {
		return nil, Outcome{}, err
	}
	out := Outcome{Complete: true}
	if s.Roll < move {
		if out.Payout, err = payout(bet, 99, uint64(move)); err != nil {
			return nil, Outcome{}, err
		}
	}
	return next, out, nil
}

// HiLo deals one card face up; each move guesses whether the next card
// is higher or lower. Correct guesses grow the multiplier, a tie
// pushes, a wrong guess loses the bet. The player may cash out at any
// time and is cashed out automatically at the streak limit.
type HiLo struct{}

const (
	HiLoHigher uint8 = iota
	HiLoLower
	HiLoCashOut
)

const (
	hiloMaxStreak = 12
	hiloBaseBps   = 10_000
)

type hiloState struct {
	Card          uint8
	Streak        uint32
	MultiplierBps uint64
}

func (hiloState) SchemaVersion() uint8 { return 1 }

func (HiLo) Type() types.GameType { return types.GameHiLo }

func drawCard(rng *Rand) uint8 { return uint8(rng.Intn(13)) + 1 }

func (HiLo) Init(_ uint64, rng *Rand) ([]byte, error) {
	return state.Encode(hiloState{Card: drawCard(rng), MultiplierBps: hiloBaseBps})
}

func (HiLo) Move(st []byte, move uint8, bet uint64, rng *Rand) ([]byte, Outcome, error) {
	var s hiloState
	if err := state.Decode(st, &s); err != nil {
		return nil, Outcome{}, err
	}
	var out Outcome
	switch move {
	case HiLoCashOut:
		out.Complete = true
	case HiLoHigher, HiLoLower:
		next := drawCard(rng)
		switch {
		case next == s.Card:
		case (move == HiLoHigher) == (next > s.Card):
			s.Streak++
			s.MultiplierBps += s.MultiplierBps / 2
			out.Complete = s.Streak >= hiloMaxStreak
		default:
			s.Card = next
			blob, err := state.Encode(s)
			return blob, Outcome{Complete: true}, err
		}
		s.Card = next
	default:
		return nil, Outcome{}, handlers.Fail(handlers.CodeInvalidMove, "hilo move %d", move)
	}
	if out.Complete {
		p, err := payout(bet, s.MultiplierBps, hiloBaseBps)
		if err != nil {
			return nil, Outcome{}, err
		}
		out.Payout = p
	}
	blob, err := state.Encode(s)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("hilo: %w", err)
	}
	return blob, out, nil
}
