package storage

import (
	"context"
	"errors"
	"testing"

	"liquidity_go/internal/domain"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrderbook() domain.OrderbookState {
	return domain.OrderbookState{
		MarketID:       "0xmarket",
		SubaccountID:   "0xsubaccount",
		MinTradesToAvg: 1,
		Enabled:        true,
	}
}

func obsAt(ts uint64) domain.Observation {
	p := decimal.NewFromInt(int64(ts))
	return domain.Observation{Timestamp: ts, Price: p, PriceSMA: p}
}

// runPoolStoreSuite checks the behavior every PoolStore backend shares.
func runPoolStoreSuite(t *testing.T, open func(t *testing.T) domain.PoolStore) {
	t.Run("NotInitialized", func(t *testing.T) {
		store := open(t)
		err := store.Update(t.Context(), func(domain.PoolState) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotInitialized)
		assert.ErrorIs(t, err, domain.ErrStorageAccess)

		err = store.View(t.Context(), func(domain.PoolState) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotInitialized)
	})

	t.Run("InitialState", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))

		err := store.View(t.Context(), func(st domain.PoolState) error {
			assert.Equal(t, 3, st.Capacity())
			assert.Equal(t, 0, st.Len())
			assert.Equal(t, 2, st.Head())

			last, err := st.ReadLast()
			require.NoError(t, err)
			assert.Nil(t, last)

			pre, err := st.LoadPrecommit()
			require.NoError(t, err)
			assert.Nil(t, pre)

			ob, err := st.LoadOrderbook()
			require.NoError(t, err)
			assert.Equal(t, testOrderbook(), *ob)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("InvalidInit", func(t *testing.T) {
		store := open(t)
		var cfgErr *domain.ConfigError
		assert.ErrorAs(t, store.Init(t.Context(), 0, testOrderbook()), &cfgErr)

		ob := testOrderbook()
		ob.MinTradesToAvg = 4
		assert.ErrorAs(t, store.Init(t.Context(), 3, ob), &cfgErr)
	})

	t.Run("Reinit", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))
		require.NoError(t, store.Update(t.Context(), func(st domain.PoolState) error {
			return st.Push(obsAt(1))
		}))

		// Same layout keeps existing history.
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))
		require.NoError(t, store.View(t.Context(), func(st domain.PoolState) error {
			assert.Equal(t, 1, st.Len())
			return nil
		}))

		assert.ErrorIs(t, store.Init(t.Context(), 4, testOrderbook()), domain.ErrLayoutChanged)
	})

	t.Run("Wraparound", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))

		for ts := uint64(1); ts <= 4; ts++ {
			require.NoError(t, store.Update(t.Context(), func(st domain.PoolState) error {
				return st.Push(obsAt(ts))
			}))
		}

		require.NoError(t, store.View(t.Context(), func(st domain.PoolState) error {
			assert.Equal(t, 3, st.Len())
			assert.Equal(t, 0, st.Head())

			last, err := st.ReadLast()
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.Equal(t, uint64(4), last.Timestamp)
			assert.True(t, last.Price.Equal(decimal.NewFromInt(4)))

			oldest, err := st.ReadAt(st.Head() + 1)
			require.NoError(t, err)
			require.NotNil(t, oldest)
			assert.Equal(t, uint64(2), oldest.Timestamp)
			return nil
		}))
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))

		boom := errors.New("boom")
		err := store.Update(t.Context(), func(st domain.PoolState) error {
			if err := st.Push(obsAt(1)); err != nil {
				return err
			}
			if err := st.SavePrecommit(domain.NewPrecommitObservation(uint256.NewInt(1), uint256.NewInt(2), 5)); err != nil {
				return err
			}
			ob, err := st.LoadOrderbook()
			if err != nil {
				return err
			}
			ob.MarkReady()
			if err := st.SaveOrderbook(ob); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, store.View(t.Context(), func(st domain.PoolState) error {
			assert.Equal(t, 0, st.Len())
			assert.Equal(t, 2, st.Head())
			pre, err := st.LoadPrecommit()
			require.NoError(t, err)
			assert.Nil(t, pre)
			ob, err := st.LoadOrderbook()
			require.NoError(t, err)
			assert.False(t, ob.Ready)
			return nil
		}))
	})

	t.Run("ReadYourWrites", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))

		require.NoError(t, store.Update(t.Context(), func(st domain.PoolState) error {
			require.NoError(t, st.Push(obsAt(1)))
			require.NoError(t, st.Push(obsAt(2)))
			last, err := st.ReadLast()
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.Equal(t, uint64(2), last.Timestamp)
			assert.Equal(t, 2, st.Len())
			return nil
		}))
	})

	t.Run("PrecommitRoundTrip", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))

		base := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
		pre := domain.NewPrecommitObservation(base, uint256.NewInt(3), 42)
		require.NoError(t, store.Update(t.Context(), func(st domain.PoolState) error {
			return st.SavePrecommit(pre)
		}))

		// Mutating the caller's value must not leak into the store.
		base.SetUint64(0)

		require.NoError(t, store.View(t.Context(), func(st domain.PoolState) error {
			got, err := st.LoadPrecommit()
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, uint64(42), got.Timestamp)
			assert.Equal(t, new(uint256.Int).Lsh(uint256.NewInt(1), 200), got.BaseAmount)
			assert.Equal(t, uint256.NewInt(3), got.QuoteAmount)
			return nil
		}))
	})

	t.Run("ViewIsReadOnly", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))

		err := store.View(t.Context(), func(st domain.PoolState) error {
			return st.Push(obsAt(1))
		})
		assert.ErrorIs(t, err, domain.ErrStorageAccess)

		require.NoError(t, store.View(t.Context(), func(st domain.PoolState) error {
			assert.Equal(t, 0, st.Len())
			return nil
		}))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Init(t.Context(), 3, testOrderbook()))

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		called := false
		err := store.Update(ctx, func(domain.PoolState) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})
}
