package service

import (
	"testing"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/infra/storage"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	observations int
	precommits   int
	reconciles   int
	errors       int
	ready        bool
}

func (c *countingRecorder) RecordObservation() { c.observations++ }
func (c *countingRecorder) RecordPrecommit()   { c.precommits++ }
func (c *countingRecorder) RecordReconcile()   { c.reconciles++ }
func (c *countingRecorder) RecordError()       { c.errors++ }
func (c *countingRecorder) SetReady(r bool)    { c.ready = r }

func newTestService(t *testing.T, minTrades uint32) (*PoolService, *countingRecorder, *fakeVenue) {
	t.Helper()
	store := storage.NewMemoryStore(testPool.Address)
	require.NoError(t, store.Init(t.Context(), 4, domain.OrderbookState{
		MarketID:       "0xmarket",
		SubaccountID:   "0xsub",
		MinTradesToAvg: minTrades,
		Enabled:        true,
	}))

	custody := &fakeCustody{balances: map[string]*uint256.Int{
		"inj":  amount("1000000000000000000"),
		"usdt": amount("1000000"),
	}}
	venue := &fakeVenue{balances: map[string]*uint256.Int{"inj": amount("500000000000000000")}}
	rec := &countingRecorder{}
	return NewPoolService(testPool, store, NewReconciler(testPrec, custody, venue), rec), rec, venue
}

func TestPoolService_SwapThenAccumulate(t *testing.T) {
	svc, rec, _ := newTestService(t, 2)
	ctx := t.Context()

	require.NoError(t, svc.RecordSwap(ctx, uint256.NewInt(300), uint256.NewInt(100), 10))
	require.NoError(t, svc.RunAccumulation(ctx, 11))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len)
	assert.Equal(t, 0, snap.Head)
	require.NotNil(t, snap.Last)
	assert.Equal(t, uint64(10), snap.Last.Timestamp)
	assert.True(t, snap.Last.Price.Equal(dec("3")))
	assert.False(t, snap.Orderbook.Ready)

	require.NoError(t, svc.RecordSwap(ctx, uint256.NewInt(500), uint256.NewInt(100), 11))
	require.NoError(t, svc.RunAccumulation(ctx, 11))

	snap, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len)
	assert.True(t, snap.Last.PriceSMA.Equal(dec("4")))
	assert.True(t, snap.Orderbook.Ready)

	assert.Equal(t, 2, rec.precommits)
	assert.Equal(t, 2, rec.observations)
	assert.True(t, rec.ready)
	assert.Zero(t, rec.errors)
}

func TestPoolService_AccumulationWithoutSwap(t *testing.T) {
	svc, rec, _ := newTestService(t, 1)

	require.NoError(t, svc.RunAccumulation(t.Context(), 5))
	snap, err := svc.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len)
	assert.Nil(t, snap.Precommit)
	assert.Zero(t, rec.observations)
}

func TestPoolService_AccumulationErrorCounted(t *testing.T) {
	svc, rec, _ := newTestService(t, 1)

	require.NoError(t, svc.RecordSwap(t.Context(), uint256.NewInt(1), uint256.NewInt(0), 1))
	err := svc.RunAccumulation(t.Context(), 2)
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)
	assert.Equal(t, 1, rec.errors)
}

func TestPoolService_ReconcileBalances(t *testing.T) {
	svc, rec, venue := newTestService(t, 1)

	got, err := svc.ReconcileBalances(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, "0xsub", venue.subaccount)
	require.Len(t, got, 2)
	assert.True(t, got[0].Amount.Equal(dec("1.5")))
	assert.True(t, got[1].Amount.Equal(dec("1")))
	assert.Equal(t, 1, rec.reconciles)

	_, err = svc.ReconcileBalances(t.Context(), []domain.Asset{{Denom: "inj"}})
	assert.ErrorIs(t, err, domain.ErrAssetMismatch)
	assert.Equal(t, 1, rec.errors)
}

func TestPoolService_NilRecorder(t *testing.T) {
	store := storage.NewMemoryStore("p")
	require.NoError(t, store.Init(t.Context(), 2, domain.OrderbookState{SubaccountID: "0xsub", MinTradesToAvg: 1}))
	svc := NewPoolService(testPool, store, NewReconciler(testPrec, &fakeCustody{}, &fakeVenue{}), nil)

	require.NoError(t, svc.RecordSwap(t.Context(), uint256.NewInt(1), uint256.NewInt(1), 1))
	require.NoError(t, svc.RunAccumulation(t.Context(), 2))
}

func TestPoolService_RestoreReportsPersistedGate(t *testing.T) {
	ctx := t.Context()
	store := storage.NewMemoryStore(testPool.Address)
	require.NoError(t, store.Init(ctx, 4, domain.OrderbookState{
		SubaccountID:   "0xsub",
		MinTradesToAvg: 1,
		Ready:          true,
		Enabled:        true,
	}))

	// a restarted keeper: fresh recorder, gate already open on disk
	rec := &countingRecorder{}
	svc := NewPoolService(testPool, store, NewReconciler(testPrec, &fakeCustody{}, &fakeVenue{}), rec)

	snap, err := svc.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Orderbook.Ready)
	assert.True(t, rec.ready)

	// accumulation without a precommit must not clear it
	require.NoError(t, svc.RunAccumulation(ctx, 10))
	assert.True(t, rec.ready)
}

func TestPoolService_RestoreClosedGate(t *testing.T) {
	svc, rec, _ := newTestService(t, 2)
	rec.ready = true

	_, err := svc.Restore(t.Context())
	require.NoError(t, err)
	assert.False(t, rec.ready)
}

func TestPoolService_RestoreNotInitialized(t *testing.T) {
	rec := &countingRecorder{}
	svc := NewPoolService(testPool, storage.NewMemoryStore("p"), NewReconciler(testPrec, &fakeCustody{}, &fakeVenue{}), rec)

	_, err := svc.Restore(t.Context())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.Equal(t, 1, rec.errors)
}
