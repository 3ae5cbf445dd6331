// Package oracle accumulates swap prices into the pool's observation history and
// decides when enough history exists to trust the order-book integration.
package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"liquidity_go/internal/domain"
	"liquidity_go/pkg/safe"
)

// Window is the part of the observation buffer the accumulator reads.
type Window struct {
	Len      int
	Capacity int
	Last     *domain.Observation
	// Evicted is the entry in the slot overwritten by the next append; nil until the buffer is full.
	Evicted *domain.Observation
}

// ReadWindow loads the window from a buffer.
func ReadWindow(buf domain.ObservationBuffer) (Window, error) {
	w := Window{Len: buf.Len(), Capacity: buf.Capacity()}
	if w.Len == 0 {
		return w, nil
	}

	last, err := buf.ReadLast()
	if err != nil {
		return Window{}, err
	}
	evicted, err := buf.ReadAt(buf.Head() + 1)
	if err != nil {
		return Window{}, err
	}
	w.Last = last
	w.Evicted = evicted
	return w, nil
}

// Update selects the SMA recurrence for the current fullness.
func (w Window) Update() SMAUpdate {
	if w.Evicted != nil {
		return Full{Count: w.Capacity, Oldest: w.Evicted.Price}
	}
	return Partial{Count: w.Len}
}

// Outcome is the result of one accumulation step.
type Outcome struct {
	Observation *domain.Observation
	OpenGate    bool
}

// Accumulate decides whether pre becomes a new observation.
// A nil Observation in the outcome means nothing is to be written.
func Accumulate(pre *domain.PrecommitObservation, w Window, blockTime uint64, ob domain.OrderbookState) (Outcome, error) {
	if pre == nil {
		return Outcome{}, nil
	}

	// Already consumed.
	if w.Last != nil && w.Last.Timestamp >= pre.Timestamp {
		return Outcome{}, nil
	}

	price, err := safe.Ratio(pre.BaseAmount, pre.QuoteAmount)
	if err != nil {
		return Outcome{}, fmt.Errorf("observed price: %w", err)
	}

	obs := domain.Observation{Timestamp: pre.Timestamp, Price: price, PriceSMA: price}
	if w.Last == nil {
		// The guard applies to the seed only; later samples are appended in the same block.
		if blockTime <= pre.Timestamp {
			return Outcome{}, nil
		}
	} else {
		sma, err := w.Update().Next(w.Last.PriceSMA, price)
		if err != nil {
			return Outcome{}, fmt.Errorf("price sma: %w", err)
		}
		obs.PriceSMA = sma
	}

	count := min(w.Len+1, w.Capacity)
	return Outcome{Observation: &obs, OpenGate: ob.ShouldOpen(count)}, nil
}

// Accumulator applies Accumulate to persisted pool state.
type Accumulator struct {
	logger *slog.Logger
}

// NewAccumulator creates an accumulator logging through logger (slog.Default when nil).
func NewAccumulator(logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{logger: logger.With("module", "accumulator")}
}

// Run consumes the pending precommit, if any, in a single store transaction.
// On error nothing is written.
func (a *Accumulator) Run(ctx context.Context, store domain.PoolStore, blockTime uint64) (Outcome, error) {
	var out Outcome
	err := store.Update(ctx, func(st domain.PoolState) error {
		out = Outcome{}

		pre, err := st.LoadPrecommit()
		if err != nil || pre == nil {
			return err
		}
		w, err := ReadWindow(st)
		if err != nil {
			return err
		}
		ob, err := st.LoadOrderbook()
		if err != nil {
			return err
		}

		res, err := Accumulate(pre, w, blockTime, *ob)
		if err != nil || res.Observation == nil {
			return err
		}
		if err := st.Push(*res.Observation); err != nil {
			return err
		}
		if res.OpenGate {
			ob.MarkReady()
			if err := st.SaveOrderbook(ob); err != nil {
				return err
			}
		}
		out = res
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if out.Observation != nil {
		a.logger.Debug("observation appended",
			slog.Uint64("ts", out.Observation.Timestamp),
			slog.String("price", out.Observation.Price.String()),
			slog.String("price_sma", out.Observation.PriceSMA.String()),
		)
	}
	if out.OpenGate {
		a.logger.Info("orderbook integration ready", slog.Uint64("block_time", blockTime))
	}
	return out, nil
}
