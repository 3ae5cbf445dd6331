package domain

import (
	"errors"
	"testing"
)

func TestOrderbookState_ShouldOpen(t *testing.T) {
	t.Run("opens at threshold", func(t *testing.T) {
		s := OrderbookState{MinTradesToAvg: 10}
		if s.ShouldOpen(9) {
			t.Error("Should stay closed below threshold")
		}
		if !s.ShouldOpen(10) {
			t.Error("Should open at threshold")
		}
	})

	t.Run("never re-opens", func(t *testing.T) {
		s := OrderbookState{MinTradesToAvg: 1}
		s.MarkReady()
		if s.ShouldOpen(100) {
			t.Error("An open gate must not be re-evaluated")
		}
		if !s.Ready {
			t.Error("Ready must stay true")
		}
	})
}

func TestOrderbookState_Validate(t *testing.T) {
	valid := OrderbookState{SubaccountID: "0xabc", MinTradesToAvg: 10}

	t.Run("valid", func(t *testing.T) {
		if err := valid.Validate(10); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	tests := []struct {
		name     string
		state    OrderbookState
		capacity int
	}{
		{"zero trades", OrderbookState{SubaccountID: "0xabc", MinTradesToAvg: 0}, 10},
		{"above upper limit", OrderbookState{SubaccountID: "0xabc", MinTradesToAvg: 1001}, 2000},
		{"above capacity", OrderbookState{SubaccountID: "0xabc", MinTradesToAvg: 11}, 10},
		{"missing subaccount", OrderbookState{MinTradesToAvg: 5}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate(tt.capacity)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
		})
	}
}
