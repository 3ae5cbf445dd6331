package oracle

import (
	"testing"

	"liquidity_go/pkg/safe"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPartialNext(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		last     string
		observed string
		want     string
	}{
		{"first sample", 0, "0", "7", "7"},
		{"rising", 1, "10", "20", "15"},
		{"falling", 2, "30", "0", "20"},
		{"unchanged", 5, "1.5", "1.5", "1.5"},
		{"truncated", 2, "1", "2", "1.333333333333333333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Partial{Count: tt.count}.Next(d(tt.last), d(tt.observed))
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestPartialNegativeCount(t *testing.T) {
	_, err := Partial{Count: -1}.Next(d("1"), d("1"))
	assert.Error(t, err)
}

func TestFullNext(t *testing.T) {
	// Window {10, 20, 30} has mean 20; replacing 10 with 40 moves it to 30.
	got, err := Full{Count: 3, Oldest: d("10")}.Next(d("20"), d("40"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("30")), "got %s", got)

	// Replacing 30 with 0 moves it to 10.
	got, err = Full{Count: 3, Oldest: d("30")}.Next(d("20"), d("0"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("10")), "got %s", got)
}

func TestFullUnderflow(t *testing.T) {
	// An SMA inconsistent with the evicted price cannot go negative.
	_, err := Full{Count: 2, Oldest: d("100")}.Next(d("1"), d("0"))
	assert.ErrorIs(t, err, safe.ErrUnderflow)
}

func TestFullOverflow(t *testing.T) {
	_, err := Full{Count: 1, Oldest: d("0")}.Next(safe.MaxDecimal, d("1"))
	assert.ErrorIs(t, err, safe.ErrOverflow)
}

func TestFullZeroCount(t *testing.T) {
	_, err := Full{Count: 0}.Next(d("1"), d("2"))
	assert.ErrorIs(t, err, safe.ErrDivisionByZero)
}
