package service

import (
	"context"
	"errors"
	"testing"

	"liquidity_go/internal/domain"
	"liquidity_go/pkg/safe"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCustody struct {
	balances map[string]*uint256.Int
	err      error
	calls    int
}

func (f *fakeCustody) QueryBalances(_ context.Context, _ string, denoms []string) ([]*uint256.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*uint256.Int, len(denoms))
	for i, denom := range denoms {
		if v, ok := f.balances[denom]; ok {
			out[i] = v
		} else {
			out[i] = new(uint256.Int)
		}
	}
	return out, nil
}

type fakeVenue struct {
	balances   map[string]*uint256.Int
	err        error
	short      bool
	subaccount string
}

func (f *fakeVenue) QuerySubaccountBalances(_ context.Context, subaccountID string, denoms []string) ([]*uint256.Int, error) {
	f.subaccount = subaccountID
	if f.err != nil {
		return nil, f.err
	}
	n := len(denoms)
	if f.short {
		n--
	}
	out := make([]*uint256.Int, n)
	for i := range out {
		if v, ok := f.balances[denoms[i]]; ok {
			out[i] = v
		} else {
			out[i] = new(uint256.Int)
		}
	}
	return out, nil
}

var (
	testPool = domain.PoolInfo{Address: "inj1pool", Assets: []string{"inj", "usdt"}}
	testOB   = &domain.OrderbookState{MarketID: "0xmarket", SubaccountID: "0xsub", MinTradesToAvg: 1}
	testPrec = domain.Precisions{"inj": 18, "usdt": 6}
)

func amount(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestContractBalances(t *testing.T) {
	custody := &fakeCustody{balances: map[string]*uint256.Int{
		"inj":  amount("2500000000000000000"),
		"usdt": amount("1500000"),
	}}
	r := NewReconciler(testPrec, custody, &fakeVenue{})

	got, err := r.ContractBalances(t.Context(), testPool)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inj", got[0].Denom)
	assert.True(t, got[0].Amount.Equal(dec("2.5")))
	assert.Equal(t, "usdt", got[1].Denom)
	assert.True(t, got[1].Amount.Equal(dec("1.5")))
}

func TestReconcile(t *testing.T) {
	custody := &fakeCustody{balances: map[string]*uint256.Int{
		"inj":  amount("1000000000000000000"),
		"usdt": amount("2000000"),
	}}

	t.Run("QueriesVenue", func(t *testing.T) {
		venue := &fakeVenue{balances: map[string]*uint256.Int{"usdt": amount("500000")}}
		r := NewReconciler(testPrec, custody, venue)

		got, err := r.Reconcile(t.Context(), testPool, testOB, nil)
		require.NoError(t, err)
		assert.Equal(t, "0xsub", venue.subaccount)
		require.Len(t, got, 2)
		assert.True(t, got[0].Amount.Equal(dec("1")), "inj %s", got[0].Amount)
		assert.True(t, got[1].Amount.Equal(dec("2.5")), "usdt %s", got[1].Amount)
	})

	t.Run("AllOffChainZero", func(t *testing.T) {
		r := NewReconciler(testPrec, custody, &fakeVenue{})

		got, err := r.Reconcile(t.Context(), testPool, testOB, nil)
		require.NoError(t, err)
		onChain, err := r.ContractBalances(t.Context(), testPool)
		require.NoError(t, err)
		require.Len(t, got, len(onChain))
		for i := range got {
			assert.Equal(t, onChain[i].Denom, got[i].Denom)
			assert.True(t, onChain[i].Amount.Equal(got[i].Amount))
		}
	})

	t.Run("ExplicitOffChain", func(t *testing.T) {
		venue := &fakeVenue{err: errors.New("must not be called")}
		r := NewReconciler(testPrec, custody, venue)

		got, err := r.Reconcile(t.Context(), testPool, nil, []domain.Asset{
			{Denom: "inj", Amount: amount("3000000000000000000")},
			{Denom: "usdt", Amount: nil},
		})
		require.NoError(t, err)
		assert.True(t, got[0].Amount.Equal(dec("4")))
		assert.True(t, got[1].Amount.Equal(dec("2")))
	})

	t.Run("MisalignedOffChain", func(t *testing.T) {
		r := NewReconciler(testPrec, custody, &fakeVenue{})

		_, err := r.Reconcile(t.Context(), testPool, testOB, []domain.Asset{
			{Denom: "usdt", Amount: amount("1")},
			{Denom: "inj", Amount: amount("1")},
		})
		assert.ErrorIs(t, err, domain.ErrAssetMismatch)

		_, err = r.Reconcile(t.Context(), testPool, testOB, []domain.Asset{{Denom: "inj", Amount: amount("1")}})
		assert.ErrorIs(t, err, domain.ErrAssetMismatch)
	})

	t.Run("ShortVenueResult", func(t *testing.T) {
		r := NewReconciler(testPrec, custody, &fakeVenue{short: true})
		_, err := r.Reconcile(t.Context(), testPool, testOB, nil)
		assert.ErrorIs(t, err, domain.ErrAssetMismatch)
	})

	t.Run("UnknownAsset", func(t *testing.T) {
		r := NewReconciler(domain.Precisions{"inj": 18}, custody, &fakeVenue{})
		got, err := r.Reconcile(t.Context(), testPool, testOB, nil)
		assert.ErrorIs(t, err, domain.ErrUnknownAsset)
		assert.Nil(t, got)
	})

	t.Run("VenueFailureIsNotZero", func(t *testing.T) {
		netErr := domain.NewNetworkError("subaccount deposits", errors.New("connection reset"))
		r := NewReconciler(testPrec, custody, &fakeVenue{err: netErr})

		got, err := r.Reconcile(t.Context(), testPool, testOB, nil)
		assert.Nil(t, got)
		assert.True(t, domain.IsRetriable(err))
	})

	t.Run("CustodyFailure", func(t *testing.T) {
		r := NewReconciler(testPrec, &fakeCustody{err: errors.New("boom")}, &fakeVenue{})
		_, err := r.Reconcile(t.Context(), testPool, testOB, nil)
		assert.Error(t, err)
	})

	t.Run("Overflow", func(t *testing.T) {
		huge := new(uint256.Int).SetAllOne()
		r := NewReconciler(domain.Precisions{"inj": 18, "usdt": 18},
			&fakeCustody{balances: map[string]*uint256.Int{"inj": huge}},
			&fakeVenue{balances: map[string]*uint256.Int{"inj": huge}},
		)
		_, err := r.Reconcile(t.Context(), testPool, testOB, nil)
		assert.ErrorIs(t, err, safe.ErrOverflow)
	})
}

func TestReconcileAlignment(t *testing.T) {
	denoms := []string{"a", "b", "c", "d", "e"}
	prec := domain.Precisions{}
	for i, denom := range denoms {
		prec[denom] = uint8(i * 3)
	}

	for k := 2; k <= len(denoms); k++ {
		pool := domain.PoolInfo{Address: "inj1pool", Assets: denoms[:k]}
		custody := &fakeCustody{balances: map[string]*uint256.Int{}}
		for i, denom := range pool.Assets {
			custody.balances[denom] = uint256.NewInt(uint64(1000 * (i + 1)))
		}
		r := NewReconciler(prec, custody, &fakeVenue{})

		got, err := r.Reconcile(t.Context(), pool, testOB, nil)
		require.NoError(t, err)
		require.Len(t, got, k)
		for i, denom := range pool.Assets {
			assert.Equal(t, denom, got[i].Denom)
		}
	}
}
