// Package safe provides checked fixed-point arithmetic for pool prices and reserves.
// Every result carries at most Precision fractional digits and never exceeds MaxDecimal.
package safe

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept by every operation.
const Precision int32 = 18

var (
	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrOverflow is returned when a result exceeds MaxDecimal.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnderflow is returned when a result would be negative.
	ErrUnderflow = errors.New("arithmetic underflow")
)

// MaxDecimal is the largest representable value: (2^256 - 1) / 10^18.
var MaxDecimal = func() decimal.Decimal {
	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	return decimal.NewFromBigInt(limit, -Precision)
}()

func checked(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, ErrUnderflow
	}
	if d.GreaterThan(MaxDecimal) {
		return decimal.Zero, ErrOverflow
	}
	return d, nil
}

// SafeAdd returns a + b.
func SafeAdd(a, b decimal.Decimal) (decimal.Decimal, error) {
	return checked(a.Add(b))
}

// SafeSub returns a - b. A negative result is an underflow.
func SafeSub(a, b decimal.Decimal) (decimal.Decimal, error) {
	return checked(a.Sub(b))
}

// SafeDiv returns a / n truncated to Precision digits.
func SafeDiv(a decimal.Decimal, n int64) (decimal.Decimal, error) {
	if n == 0 {
		return decimal.Zero, ErrDivisionByZero
	}
	q, _ := a.QuoRem(decimal.NewFromInt(n), Precision)
	return checked(q)
}

// Ratio returns numerator / denominator truncated to Precision digits.
func Ratio(numerator, denominator *uint256.Int) (decimal.Decimal, error) {
	if denominator == nil || denominator.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	num := decimal.NewFromBigInt(toBig(numerator), 0)
	q, _ := num.QuoRem(decimal.NewFromBigInt(denominator.ToBig(), 0), Precision)
	return checked(q)
}

// FromAtomics converts a raw integer amount expressed in an asset's native precision
// into its decimal form, e.g. 1_500_000 with precision 6 becomes 1.5.
func FromAtomics(amount *uint256.Int, precision uint8) (decimal.Decimal, error) {
	d := decimal.NewFromBigInt(toBig(amount), -int32(precision))
	if int32(precision) > Precision {
		d = d.Truncate(Precision)
	}
	return checked(d)
}

// ToAtomics converts a non-negative decimal into a raw integer amount, dropping any
// fractional part.
func ToAtomics(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, ErrUnderflow
	}
	v, overflow := uint256.FromBig(d.Truncate(0).BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
