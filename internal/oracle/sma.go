package oracle

import (
	"fmt"

	"liquidity_go/pkg/safe"

	"github.com/shopspring/decimal"
)

// SMAUpdate advances a simple moving average by one sample.
// The variant is chosen by buffer fullness: Partial before the first wraparound, Full after.
type SMAUpdate interface {
	Next(lastSMA, observed decimal.Decimal) (decimal.Decimal, error)
	isSMAUpdate()
}

// Partial is the cumulative mean over Count samples.
type Partial struct {
	Count int
}

// Next returns lastSMA + (observed - lastSMA) / (Count + 1).
func (p Partial) Next(lastSMA, observed decimal.Decimal) (decimal.Decimal, error) {
	if p.Count < 0 {
		return decimal.Zero, fmt.Errorf("partial window: negative count %d", p.Count)
	}
	return shift(lastSMA, observed.Sub(lastSMA), int64(p.Count)+1)
}

func (Partial) isSMAUpdate() {}

// Full is the sliding mean over a wrapped buffer of Count entries.
// Oldest is the price evicted by the next append.
type Full struct {
	Count  int
	Oldest decimal.Decimal
}

// Next returns lastSMA + (observed - Oldest) / Count.
func (f Full) Next(lastSMA, observed decimal.Decimal) (decimal.Decimal, error) {
	return shift(lastSMA, observed.Sub(f.Oldest), int64(f.Count))
}

func (Full) isSMAUpdate() {}

// shift returns sma + delta/n, keeping every intermediate value non-negative.
func shift(sma, delta decimal.Decimal, n int64) (decimal.Decimal, error) {
	if delta.IsNegative() {
		step, err := safe.SafeDiv(delta.Neg(), n)
		if err != nil {
			return decimal.Zero, err
		}
		return safe.SafeSub(sma, step)
	}
	step, err := safe.SafeDiv(delta, n)
	if err != nil {
		return decimal.Zero, err
	}
	return safe.SafeAdd(sma, step)
}
