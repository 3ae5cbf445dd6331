package domain

import "fmt"

// Bounds for OrderbookState.MinTradesToAvg.
const (
	MinTradesToAvgLower uint32 = 1
	MinTradesToAvgUpper uint32 = 1000
)

// OrderbookState is the part of the pool's order-book integration state owned by this core.
// Ready flips from false to true exactly once and is never reset.
type OrderbookState struct {
	MarketID       string `json:"market_id"`
	SubaccountID   string `json:"subaccount_id"`
	MinTradesToAvg uint32 `json:"min_trades_to_avg"`
	Ready          bool   `json:"ready"`
	Enabled        bool   `json:"enabled"`
}

// MarkReady opens the readiness gate.
func (s *OrderbookState) MarkReady() {
	s.Ready = true
}

// ShouldOpen reports whether count observations are enough to open a still closed gate.
func (s *OrderbookState) ShouldOpen(count int) bool {
	return !s.Ready && count >= int(s.MinTradesToAvg)
}

// Validate checks the immutable configuration against the observation buffer capacity.
func (s *OrderbookState) Validate(capacity int) error {
	if s.SubaccountID == "" {
		return &ConfigError{Field: "subaccount_id", Err: fmt.Errorf("must not be empty")}
	}
	if s.MinTradesToAvg < MinTradesToAvgLower || s.MinTradesToAvg > MinTradesToAvgUpper {
		return &ConfigError{
			Field: "min_trades_to_avg",
			Err:   fmt.Errorf("%d is outside [%d, %d]", s.MinTradesToAvg, MinTradesToAvgLower, MinTradesToAvgUpper),
		}
	}
	if int(s.MinTradesToAvg) > capacity {
		return &ConfigError{
			Field: "min_trades_to_avg",
			Err:   fmt.Errorf("%d exceeds observation capacity %d", s.MinTradesToAvg, capacity),
		}
	}
	return nil
}
