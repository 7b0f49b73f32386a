// Package staking implements time-locked staking with voting power,
// house-profit epochs and reward claims.
//
// Rewards use an accumulator: each epoch adds share*RewardPrecision /
// TotalVotingPower to the house RewardIndex, and a staker is owed
// VotingPower*(house.RewardIndex - staker.RewardIndex)/RewardPrecision.
// Pending rewards are paid out whenever a staker's voting power
// changes.
package staking

import (
	"github.com/holiman/uint256"

	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

const (
	// RewardPrecision scales the reward index.
	RewardPrecision = 1_000_000_000
	// RewardShareBps is the share of a profitable epoch's house
	// profit distributed to stakers.
	RewardShareBps = 5_000
	// MinDuration is the shortest lock, in blocks.
	MinDuration = 1
)

// Handler applies staking instructions.
type Handler struct{}

var _ handlers.Handler = Handler{}

func New() Handler { return Handler{} }

func (Handler) Domain() types.Domain { return types.DomainStaking }

func (Handler) Apply(env handlers.Env, view state.View, signer types.PublicKey, instr types.Instruction) ([]types.Event, error) {
	s := instr.Staking
	switch s.Op {
	case types.StakingStake:
		return stake(env, view, signer, s.Amount, s.Duration)
	case types.StakingUnstake:
		return unstake(env, view, signer)
	case types.StakingClaimRewards:
		return claim(view, signer)
	case types.StakingProcessEpoch:
		return processEpoch(env, view, signer)
	default:
		return nil, handlers.Fail(handlers.CodeInvalidMove, "unknown staking op %d", s.Op)
	}
}

// pending returns the rewards owed to st at the house index.
func pending(st types.Staker, house types.House) uint64 {
	if house.RewardIndex <= st.RewardIndex || st.VotingPower == 0 {
		return 0
	}
	owed, ok := handlers.MulDiv(st.VotingPower, house.RewardIndex-st.RewardIndex, RewardPrecision)
	if !ok || owed > house.RewardPool {
		return house.RewardPool
	}
	return owed
}

// payRewards credits the staker's pending rewards to the account and
// checkpoints the staker's index.
func payRewards(view state.View, signer types.PublicKey, st *types.Staker, house *types.House) (uint64, error) {
	owed := pending(*st, *house)
	st.RewardIndex = house.RewardIndex
	if owed == 0 {
		return 0, nil
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return 0, err
	}
	if acct.Chips, err = handlers.AddChecked(acct.Chips, owed); err != nil {
		return 0, err
	}
	if err := state.StoreAccount(view, signer, acct); err != nil {
		return 0, err
	}
	house.RewardPool -= owed
	st.Claimed += owed
	return owed, nil
}

func stake(env handlers.Env, view state.View, signer types.PublicKey, amount, duration uint64) ([]types.Event, error) {
	if amount == 0 {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "stake must be positive")
	}
	if duration < MinDuration {
		return nil, handlers.Fail(handlers.CodeInvalidAmount, "duration too short")
	}
	unlock, err := handlers.AddChecked(env.Height, duration)
	if err != nil {
		return nil, err
	}
	st, _, err := state.LoadStaker(view, signer)
	if err != nil {
		return nil, err
	}
	house, err := state.LoadHouse(view)
	if err != nil {
		return nil, err
	}
	if _, err := payRewards(view, signer, &st, &house); err != nil {
		return nil, err
	}
	// Rewards were credited above, so load the account afterwards.
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	if acct.Chips < amount {
		return nil, handlers.Fail(handlers.CodeInsufficientFunds, "balance %d below stake %d", acct.Chips, amount)
	}
	balance, err := handlers.AddChecked(st.Balance, amount)
	if err != nil {
		return nil, err
	}
	vp := new(uint256.Int).Mul(uint256.NewInt(balance), uint256.NewInt(duration))
	if !vp.IsUint64() {
		return nil, handlers.Fail(handlers.CodeOverflow, "voting power overflow")
	}
	totalVP := new(uint256.Int).Sub(uint256.NewInt(house.TotalVotingPower), uint256.NewInt(st.VotingPower))
	totalVP.Add(totalVP, vp)
	if !totalVP.IsUint64() {
		return nil, handlers.Fail(handlers.CodeOverflow, "total voting power overflow")
	}

	acct.Chips -= amount
	st.Balance = balance
	// A new stake resets the lock for the whole balance.
	st.UnlockHeight = unlock
	st.VotingPower = vp.Uint64()
	house.TotalStaked += amount
	house.TotalVotingPower = totalVP.Uint64()

	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if err := state.StoreStaker(view, signer, st); err != nil {
		return nil, err
	}
	if err := state.StoreHouse(view, house); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventStaked, signer,
			types.Uint("amount", amount),
			types.Uint("duration", duration),
			types.Uint("balance", st.Balance),
			types.Uint("unlock_height", st.UnlockHeight),
			types.Uint("voting_power", st.VotingPower),
		),
	}, nil
}

func unstake(env handlers.Env, view state.View, signer types.PublicKey) ([]types.Event, error) {
	st, exists, err := state.LoadStaker(view, signer)
	if err != nil {
		return nil, err
	}
	if !exists || st.Balance == 0 {
		return nil, handlers.Fail(handlers.CodeNotFound, "nothing staked")
	}
	if env.Height < st.UnlockHeight {
		return nil, handlers.Fail(handlers.CodeLocked, "stake locked until height %d", st.UnlockHeight)
	}
	house, err := state.LoadHouse(view)
	if err != nil {
		return nil, err
	}
	if _, err := payRewards(view, signer, &st, &house); err != nil {
		return nil, err
	}
	acct, err := state.LoadAccount(view, signer)
	if err != nil {
		return nil, err
	}
	amount := st.Balance
	if acct.Chips, err = handlers.AddChecked(acct.Chips, amount); err != nil {
		return nil, err
	}
	house.TotalStaked -= min(house.TotalStaked, amount)
	house.TotalVotingPower -= min(house.TotalVotingPower, st.VotingPower)
	st.Balance = 0
	st.VotingPower = 0

	if err := state.StoreAccount(view, signer, acct); err != nil {
		return nil, err
	}
	if err := state.StoreStaker(view, signer, st); err != nil {
		return nil, err
	}
	if err := state.StoreHouse(view, house); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventUnstaked, signer, types.Uint("amount", amount)),
	}, nil
}

func claim(view state.View, signer types.PublicKey) ([]types.Event, error) {
	st, exists, err := state.LoadStaker(view, signer)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, handlers.Fail(handlers.CodeNotFound, "not a staker")
	}
	house, err := state.LoadHouse(view)
	if err != nil {
		return nil, err
	}
	paid, err := payRewards(view, signer, &st, &house)
	if err != nil {
		return nil, err
	}
	if err := state.StoreStaker(view, signer, st); err != nil {
		return nil, err
	}
	if err := state.StoreHouse(view, house); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventRewardsClaimed, signer, types.Uint("amount", paid)),
	}, nil
}

// processEpoch closes the current epoch once EpochLength blocks have
// passed. Anyone may submit it.
func processEpoch(env handlers.Env, view state.View, signer types.PublicKey) ([]types.Event, error) {
	house, err := state.LoadHouse(view)
	if err != nil {
		return nil, err
	}
	length := env.Config.EpochLength
	if length == 0 {
		length = types.DefaultChainConfig().EpochLength
	}
	if env.Height < house.EpochStart+length {
		return nil, handlers.Fail(handlers.CodeEpochNotReady, "epoch ends at height %d", house.EpochStart+length)
	}
	var profit, distributed uint64
	if house.EpochWagered > house.EpochPaidOut {
		profit = house.EpochWagered - house.EpochPaidOut
	}
	if profit > 0 && house.TotalVotingPower > 0 {
		share, _ := handlers.MulDiv(profit, RewardShareBps, 10_000)
		delta, ok := handlers.MulDiv(share, RewardPrecision, house.TotalVotingPower)
		if ok && delta > 0 {
			house.RewardIndex += delta
			house.RewardPool += share
			distributed = share
		}
	}
	house.CurrentEpoch++
	house.EpochStart = env.Height
	house.EpochWagered = 0
	house.EpochPaidOut = 0
	if err := state.StoreHouse(view, house); err != nil {
		return nil, err
	}
	return []types.Event{
		types.NewEvent(types.EventEpochProcessed, signer,
			types.Uint("epoch", house.CurrentEpoch),
			types.Uint("profit", profit),
			types.Uint("distributed", distributed),
		),
	}, nil
}
