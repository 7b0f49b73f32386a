// Package casino implements player registration, the chip faucet,
// wagers and game sessions.
package casino

import (
	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

// Handler applies casino instructions.
type Handler struct {
	games *Registry
}

var _ handlers.Handler = (*Handler)(nil)

// New returns a handler over games; nil selects DefaultRegistry.
func New(games *Registry) *Handler {
	if games == nil {
		games = DefaultRegistry()
	}
	return &Handler{games: games}
}

func (h *Handler) Domain() types.Domain { return types.DomainCasino }

func (h *Handler) Apply(env handlers.Env, view state.View, signer types.PublicKey, instr types.Instruction) ([]types.Event, error) {
	c := instr.Casino
	switch c.Op {
	case types.CasinoRegister:
		return register(view, signer, c.Name)
	case types.CasinoDeposit:
		return deposit(env, view, signer, c.Amount)
	case types.CasinoPlaceBet:
		return placeBet(view, signer, c.Amount)
	case types.CasinoStartGame:
		return h.startGame(env, view, signer, c.Game, c.SessionID)
	case types.CasinoGameMove:
		return h.gameMove(view, signer, c.SessionID, c.Move)
	default:
		return nil, handlers.Fail(handlers.CodeInvalidMove, "unknown casino op %d", c.Op)
	}
}

func register(view state.View, signer types.PublicKey, name string) ([]types.Event, error) {
	p, exists, err := state.LoadPlayer(view, signer)
	if err != nil {
		return nil, err
	}
	if exists && p.Name != "" {
		return nil, handlers.Fail(handlers.CodeAlreadyExists, "player already registered")
	}
	p.Name = name
	if err := state.StorePlayer(view, signer, p); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventPlayerRegistered, signer, types.String("name", name)),
	}, nil
}

// deposit is the faucet: it mints up to MaxDeposit chips per call.
func deposit(env handlers.Env, view state.View, signer types.PublicKey, amount uint64) ([]types.Event, error) {
	if amount == 0 || amount > env.Config.MaxDeposit {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "deposit must be in [1, %d]", env.Config.MaxDeposit)
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.Chips, err = handlers.AddChecked(acct.Chips, amount); err != nil {
		return nil, err
	}
	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventDeposited, signer,
			types.Uint("amount", amount),
			types.Uint("balance", acct.Chips),
		),
	}, nil
}

// placeBet moves chips from the account into the player's pending
// wager, which funds the next StartGame.
func placeBet(view state.View, signer types.PublicKey, amount uint64) ([]types.Event, error) {
	if amount == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "bet must be positive")
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.Chips < amount {
		return nil, handlers.Fail(handlers.CodeInsufficientFunds, "balance %d below bet %d", acct.Chips, amount)
	}
	p, _, err := state.LoadPlayer(view, signer)
	if err != nil {
		return nil, err
	}
	if p.PendingWager, err = handlers.AddChecked(p.PendingWager, amount); err != nil {
		return nil, err
	}
	acct.Chips -= amount
	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if err := state.StorePlayer(view, signer, p); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventBetPlaced, signer, types.Uint("amount", amount)),
	}, nil
}

func (h *Handler) startGame(env handlers.Env, view state.View, signer types.PublicKey, gt types.GameType, id uint64) ([]types.Event, error) {
	game, ok := h.games.Lookup(gt)
	if !ok {
		return nil, handlers.Fail(handlers.CodeInvalidMove, "unknown game %s", gt)
	}
	if id == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidMove, "session id must be non-zero")
	}
	p, _, err := state.LoadPlayer(view, signer)
	if err != nil {
		return nil, err
	}
	if p.PendingWager == 0 {
		return nil, handlers.Fail(handlers.CodeInsufficientFunds, "no pending wager")
	}
	if p.ActiveSession != 0 {
		return nil, handlers.Fail(handlers.CodeInvalidMove, "session %d still active", p.ActiveSession)
	}
	if _, exists, err := state.LoadSession(view, signer, id); err != nil {
		return nil, err
	} else if exists {
		return nil, handlers.Fail(handlers.CodeAlreadyExists, "session %d already exists", id)
	}

	bet := p.PendingWager
	seed := SessionSeed(signer, id, env.Height)
	rng := NewRand(seed)
	blob, err := game.Init(bet, rng)
	if err != nil {
		return nil, err
	}
	sess := types.Session{
		ID:        id,
		Player:    signer,
		Game:      gt,
		Bet:       bet,
		Seed:      rng.Next(),
		State:     blob,
		CreatedAt: env.Height,
	}
	p.PendingWager = 0
	p.ActiveSession = id
	p.TotalWagered += bet

	house, err := state.LoadHouse(view)
	if err != nil {
		return nil, err
	}
	house.EpochWagered += bet
	house.TotalWagered += bet

	if err := state.StoreSession(view, sess); err != nil {
		return nil, err
	}
	if err := state.StorePlayer(view, signer, p); err != nil {
		return nil, err
	}
	if err := state.StoreHouse(view, house); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventGameStarted, signer,
			types.Uint("session", id),
			types.String("game", gt.String()),
			types.Uint("bet", bet),
		),
	}, nil
}

func (h *Handler) gameMove(view state.View, signer types.PublicKey, id uint64, move uint8) ([]types.Event, error) {
	sess, exists, err := state.LoadSession(view, signer, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, handlers.Fail(handlers.CodeNotFound, "session %d not found", id)
	}
	if sess.Complete {
		return nil, handlers.Fail(handlers.CodeInvalidMove, "session %d already complete", id)
	}
	game, ok := h.games.Lookup(sess.Game)
	if !ok {
		return nil, handlers.Fail(handlers.CodeInvalidMove, "unknown game %s", sess.Game)
	}
	rng := NewRand(sess.Seed)
	blob, out, err := game.Move(sess.State, move, sess.Bet, rng)
	if err != nil {
		return nil, err
	}
	sess.State = blob
	sess.Seed = rng.Next()
	sess.Moves++

	events := []types.Event{
		types.NewEvent(types.EventGameMoved, signer,
			types.Uint("session", id),
			types.Uint("move", uint64(move)),
			types.Uint("moves", uint64(sess.Moves)),
		),
	}
	if out.Complete {
		sess.Complete = true
		sess.Payout = out.Payout
		if err := settle(view, signer, out.Payout); err != nil {
			return nil, err
		}
		events = append(events, types.NewEvent(types.EventGameCompleted, signer,
			types.Uint("session", id),
			types.Uint("payout", out.Payout),
		))
	}
	if err := state.StoreSession(view, sess); err != nil {
		return nil, err
	}
	return events, nil
}

// settle credits a completed session's payout and closes it.
func settle(view state.View, signer types.PublicKey, payout uint64) error {
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return err
	}
	if acct.Chips, err = handlers.AddChecked(acct.Chips, payout); err != nil {
		return err
	}
	p, _, err := state.LoadPlayer(view, signer)
	if err != nil {
		return err
	}
	p.ActiveSession = 0
	p.SessionsPlayed++
	p.TotalWon += payout

	house, err := state.LoadHouse(view)
	if err != nil {
		return err
	}
	house.EpochPaidOut += payout
	house.TotalPaidOut += payout

	if err := state.StoreAccount(view, signer, acct); err != nil {
		return err
	}
	if err := state.StorePlayer(view, signer, p); err != nil {
		return err
	}
	return state.StoreHouse(view, house)
}
