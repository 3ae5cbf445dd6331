package service

import (
	"context"
	"fmt"
	"log/slog"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/oracle"

	"github.com/holiman/uint256"
)

// Recorder receives pool activity counters.
type Recorder interface {
	RecordObservation()
	RecordPrecommit()
	RecordReconcile()
	RecordError()
	SetReady(ready bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordObservation() {}
func (nopRecorder) RecordPrecommit()   {}
func (nopRecorder) RecordReconcile()   {}
func (nopRecorder) RecordError()       {}
func (nopRecorder) SetReady(bool)      {}

// PoolSnapshot is a read-only view of the persisted pool state.
type PoolSnapshot struct {
	Capacity  int
	Len       int
	Head      int
	Last      *domain.Observation
	Precommit *domain.PrecommitObservation
	Orderbook domain.OrderbookState
}

// PoolService exposes the accumulation and reconciliation entry points of one pool.
type PoolService struct {
	pool        domain.PoolInfo
	store       domain.PoolStore
	accumulator *oracle.Accumulator
	reconciler  *Reconciler
	metrics     Recorder
	logger      *slog.Logger
}

// NewPoolService creates a PoolService. A nil recorder disables metrics.
func NewPoolService(pool domain.PoolInfo, store domain.PoolStore, reconciler *Reconciler, metrics Recorder) *PoolService {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	logger := slog.Default().With("module", "pool", "pool", pool.Address)
	return &PoolService{
		pool:        pool,
		store:       store,
		accumulator: oracle.NewAccumulator(logger),
		reconciler:  reconciler,
		metrics:     metrics,
		logger:      logger,
	}
}

// Pool returns the pool identity.
func (s *PoolService) Pool() domain.PoolInfo {
	return s.pool
}

// Restore seeds the recorder from the persisted state, so a pool whose gate
// opened before a restart is reported ready.
func (s *PoolService) Restore(ctx context.Context) (PoolSnapshot, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.metrics.RecordError()
		return PoolSnapshot{}, fmt.Errorf("restore: %w", err)
	}
	s.metrics.SetReady(snap.Orderbook.Ready)
	s.logger.Info("pool state restored",
		slog.Int("len", snap.Len),
		slog.Int("capacity", snap.Capacity),
		slog.Bool("ready", snap.Orderbook.Ready),
	)
	return snap, nil
}

// RunAccumulation folds the pending precommit into the observation history.
// Calling it again without a new precommit changes nothing.
func (s *PoolService) RunAccumulation(ctx context.Context, blockTime uint64) error {
	out, err := s.accumulator.Run(ctx, s.store, blockTime)
	if err != nil {
		s.metrics.RecordError()
		return fmt.Errorf("accumulate: %w", err)
	}
	if out.Observation != nil {
		s.metrics.RecordObservation()
	}
	if out.OpenGate {
		s.metrics.SetReady(true)
	}
	return nil
}

// RecordSwap overwrites the precommit slot with the amounts of a swap executed at blockTime.
func (s *PoolService) RecordSwap(ctx context.Context, base, quote *uint256.Int, blockTime uint64) error {
	pre := domain.NewPrecommitObservation(base, quote, blockTime)
	err := s.store.Update(ctx, func(st domain.PoolState) error {
		return st.SavePrecommit(pre)
	})
	if err != nil {
		s.metrics.RecordError()
		return fmt.Errorf("record swap: %w", err)
	}
	s.metrics.RecordPrecommit()
	s.logger.Debug("precommit recorded",
		slog.Uint64("ts", blockTime),
		slog.String("base", pre.BaseAmount.Dec()),
		slog.String("quote", pre.QuoteAmount.Dec()),
	)
	return nil
}

// ReconcileBalances returns the effective reserves in pool asset order.
// A nil offChain queries the venue sub-account; otherwise it must be aligned with the pool assets.
func (s *PoolService) ReconcileBalances(ctx context.Context, offChain []domain.Asset) ([]domain.DecimalAsset, error) {
	var ob *domain.OrderbookState
	if offChain == nil {
		err := s.store.View(ctx, func(st domain.PoolState) error {
			var err error
			ob, err = st.LoadOrderbook()
			return err
		})
		if err != nil {
			s.metrics.RecordError()
			return nil, fmt.Errorf("reconcile: %w", err)
		}
	}

	reserves, err := s.reconciler.Reconcile(ctx, s.pool, ob, offChain)
	if err != nil {
		s.metrics.RecordError()
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	s.metrics.RecordReconcile()
	return reserves, nil
}

// Snapshot reads the current pool state.
func (s *PoolService) Snapshot(ctx context.Context) (PoolSnapshot, error) {
	var snap PoolSnapshot
	err := s.store.View(ctx, func(st domain.PoolState) error {
		last, err := st.ReadLast()
		if err != nil {
			return err
		}
		pre, err := st.LoadPrecommit()
		if err != nil {
			return err
		}
		ob, err := st.LoadOrderbook()
		if err != nil {
			return err
		}
		snap = PoolSnapshot{
			Capacity:  st.Capacity(),
			Len:       st.Len(),
			Head:      st.Head(),
			Last:      last,
			Precommit: pre,
			Orderbook: *ob,
		}
		return nil
	})
	if err != nil {
		return PoolSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}
