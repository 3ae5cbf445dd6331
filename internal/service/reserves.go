package service

import (
	"context"
	"fmt"

	"liquidity_go/internal/domain"
	"liquidity_go/pkg/safe"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Reconciler merges the balances held by the pool contract with the balances
// parked in its order-book sub-account.
type Reconciler struct {
	precisions domain.PrecisionResolver
	custody    domain.CustodyQuerier
	venue      domain.VenueQuerier
}

// NewReconciler creates a Reconciler.
func NewReconciler(precisions domain.PrecisionResolver, custody domain.CustodyQuerier, venue domain.VenueQuerier) *Reconciler {
	return &Reconciler{precisions: precisions, custody: custody, venue: venue}
}

// ContractBalances returns the on-chain balances of the pool in asset order.
func (r *Reconciler) ContractBalances(ctx context.Context, pool domain.PoolInfo) ([]domain.DecimalAsset, error) {
	raw, err := r.custody.QueryBalances(ctx, pool.Address, pool.Assets)
	if err != nil {
		return nil, fmt.Errorf("query contract balances: %w", err)
	}
	if len(raw) != len(pool.Assets) {
		return nil, fmt.Errorf("%w: custody returned %d balances for %d assets", domain.ErrAssetMismatch, len(raw), len(pool.Assets))
	}

	out := make([]domain.DecimalAsset, len(pool.Assets))
	for i, denom := range pool.Assets {
		amount, err := r.convert(denom, raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = domain.DecimalAsset{Denom: denom, Amount: amount}
	}
	return out, nil
}

// Reconcile returns the effective reserves: contract balance plus sub-account balance
// for every pool asset, in pool asset order.
//
// When offChain is nil the sub-account of ob is queried. Otherwise offChain must list
// exactly the pool assets in the same order.
func (r *Reconciler) Reconcile(ctx context.Context, pool domain.PoolInfo, ob *domain.OrderbookState, offChain []domain.Asset) ([]domain.DecimalAsset, error) {
	onChain, err := r.ContractBalances(ctx, pool)
	if err != nil {
		return nil, err
	}

	parked, err := r.offChainAmounts(ctx, pool, ob, offChain)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DecimalAsset, len(pool.Assets))
	for i, denom := range pool.Assets {
		amount, err := r.convert(denom, parked[i])
		if err != nil {
			return nil, err
		}
		sum, err := safe.SafeAdd(onChain[i].Amount, amount)
		if err != nil {
			return nil, fmt.Errorf("reserve %s: %w", denom, err)
		}
		out[i] = domain.DecimalAsset{Denom: denom, Amount: sum}
	}
	return out, nil
}

func (r *Reconciler) offChainAmounts(ctx context.Context, pool domain.PoolInfo, ob *domain.OrderbookState, offChain []domain.Asset) ([]*uint256.Int, error) {
	if offChain != nil {
		if len(offChain) != len(pool.Assets) {
			return nil, fmt.Errorf("%w: %d off-chain balances for %d assets", domain.ErrAssetMismatch, len(offChain), len(pool.Assets))
		}
		amounts := make([]*uint256.Int, len(offChain))
		for i, a := range offChain {
			if a.Denom != pool.Assets[i] {
				return nil, fmt.Errorf("%w: off-chain balance %d is %s, want %s", domain.ErrAssetMismatch, i, a.Denom, pool.Assets[i])
			}
			amounts[i] = a.Amount
		}
		return amounts, nil
	}

	if ob == nil {
		return nil, fmt.Errorf("query sub-account balances: %w", domain.ErrNotInitialized)
	}
	amounts, err := r.venue.QuerySubaccountBalances(ctx, ob.SubaccountID, pool.Assets)
	if err != nil {
		return nil, fmt.Errorf("query sub-account balances: %w", err)
	}
	if len(amounts) != len(pool.Assets) {
		return nil, fmt.Errorf("%w: venue returned %d balances for %d assets", domain.ErrAssetMismatch, len(amounts), len(pool.Assets))
	}
	return amounts, nil
}

func (r *Reconciler) convert(denom string, amount *uint256.Int) (decimal.Decimal, error) {
	precision, err := r.precisions.Precision(denom)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := safe.FromAtomics(amount, precision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert %s: %w", denom, err)
	}
	return d, nil
}
