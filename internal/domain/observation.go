package domain

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Observation is one sampled price and the SMA as of that sample.
type Observation struct {
	Timestamp uint64          `json:"ts"`
	Price     decimal.Decimal `json:"price"`
	PriceSMA  decimal.Decimal `json:"price_sma"`
}

// PrecommitObservation holds the amounts of the latest swap awaiting inclusion
// in the observation history. The slot holding it is overwritten in place.
type PrecommitObservation struct {
	BaseAmount  *uint256.Int `json:"base_amount"`
	QuoteAmount *uint256.Int `json:"quote_amount"`
	Timestamp   uint64       `json:"precommit_ts"`
}

// NewPrecommitObservation copies the amounts so the slot never aliases caller state.
func NewPrecommitObservation(base, quote *uint256.Int, ts uint64) PrecommitObservation {
	return PrecommitObservation{
		BaseAmount:  cloneAmount(base),
		QuoteAmount: cloneAmount(quote),
		Timestamp:   ts,
	}
}

// Clone returns a deep copy.
func (p PrecommitObservation) Clone() PrecommitObservation {
	return NewPrecommitObservation(p.BaseAmount, p.QuoteAmount, p.Timestamp)
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
