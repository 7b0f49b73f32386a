package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockberries/nullspace/eventlog"
	"github.com/blockberries/nullspace/proof"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/store"
	"github.com/blockberries/nullspace/types"
)

// Query serves reads of committed state. Malformed requests are
// answered with a result code; only storage faults are errors.
func (a *App) Query(_ context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	switch req.Path {
	case types.QueryAccount:
		return a.queryAccount(req)
	case types.QueryState, types.QueryProof:
		return a.queryKeys(req)
	case types.QueryEvents, types.QueryReceipts:
		return a.queryBlocks(req)
	default:
		return types.StateQueryResult{Code: types.QueryUnknownPath, Info: fmt.Sprintf("unknown path %q", req.Path)}, nil
	}
}

// resolve returns the height and root a query reads at.
func (a *App) resolve(req types.StateQuery) (uint64, types.Hash, *types.StateQueryResult) {
	last, ok := a.pipeline.Last()
	if !ok {
		return 0, types.Hash{}, &types.StateQueryResult{Code: types.QueryUnknownHeight, Info: "no committed state"}
	}
	if req.Height == nil || *req.Height == last.Height {
		return last.Height, last.Root, nil
	}
	root, err := a.store.RootAt(*req.Height)
	if err != nil {
		return 0, types.Hash{}, &types.StateQueryResult{Code: types.QueryUnknownHeight, Info: err.Error()}
	}
	return *req.Height, root, nil
}

func (a *App) queryAccount(req types.StateQuery) (types.StateQueryResult, error) {
	height, root, bad := a.resolve(req)
	if bad != nil {
		return *bad, nil
	}
	r, err := a.store.Reader(height)
	if err != nil {
		return types.StateQueryResult{}, err
	}
	key := state.AccountKey(req.Account)
	acct, exists, err := state.Load[types.Account](r, key)
	if err != nil {
		return types.StateQueryResult{}, fmt.Errorf("ledger: query account: %w", err)
	}
	res := types.StateQueryResult{Height: height, Root: root}
	if exists {
		res.Account = &acct
	} else {
		res.Code = types.QueryNotFound
	}
	if req.Prove {
		p, err := a.store.Prove(height, []types.Key{key})
		if err != nil {
			return types.StateQueryResult{}, err
		}
		a.proofMetrics.RecordBuilt()
		res.Proof = p
	}
	return res, nil
}

func (a *App) queryKeys(req types.StateQuery) (types.StateQueryResult, error) {
	if len(req.Keys) == 0 || len(req.Keys) > proof.MaxProofKeys {
		return types.StateQueryResult{
			Code: types.QueryBadRequest,
			Info: fmt.Sprintf("need 1 to %d keys, got %d", proof.MaxProofKeys, len(req.Keys)),
		}, nil
	}
	height, root, bad := a.resolve(req)
	if bad != nil {
		return *bad, nil
	}
	res := types.StateQueryResult{Height: height, Root: root, Values: make([][]byte, len(req.Keys))}
	for i, k := range req.Keys {
		v, err := a.store.GetAt(height, k)
		if err != nil {
			return types.StateQueryResult{}, err
		}
		res.Values[i] = v
	}
	if req.Path == types.QueryProof || req.Prove {
		p, err := a.store.Prove(height, req.Keys)
		switch {
		case errors.Is(err, proof.ErrTooManyNodes), errors.Is(err, proof.ErrNodeTooLarge):
			return types.StateQueryResult{Code: types.QueryBadRequest, Info: err.Error()}, nil
		case errors.Is(err, store.ErrUnknownHeight):
			return types.StateQueryResult{Code: types.QueryUnknownHeight, Info: err.Error()}, nil
		case err != nil:
			return types.StateQueryResult{}, err
		}
		a.proofMetrics.RecordBuilt()
		res.Proof = p
	}
	return res, nil
}

func (a *App) queryBlocks(req types.StateQuery) (types.StateQueryResult, error) {
	if req.ToHeight < req.FromHeight {
		return types.StateQueryResult{Code: types.QueryBadRequest, Info: "to_height below from_height"}, nil
	}
	recs, err := a.log.Range(req.FromHeight, req.ToHeight)
	switch {
	case errors.Is(err, eventlog.ErrRangeTooWide):
		return types.StateQueryResult{Code: types.QueryBadRequest, Info: err.Error()}, nil
	case err != nil:
		return types.StateQueryResult{}, err
	}
	last, _ := a.pipeline.Last()
	res := types.StateQueryResult{Height: last.Height, Root: last.Root}
	for _, rec := range recs {
		// Records above the committed height are not visible yet.
		if rec.Height > last.Height {
			break
		}
		hb := types.HeightEvents{Height: rec.Height}
		if req.Path == types.QueryEvents {
			hb.Events = rec.Events
		} else {
			hb.Receipts = rec.Receipts
		}
		res.Blocks = append(res.Blocks, hb)
	}
	if len(res.Blocks) == 0 {
		res.Code = types.QueryNotFound
	}
	return res, nil
}
