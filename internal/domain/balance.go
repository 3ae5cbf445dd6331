package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Asset is a raw integer balance in the asset's native precision.
type Asset struct {
	Denom  string       `json:"denom"`
	Amount *uint256.Int `json:"amount"`
}

// DecimalAsset is a balance converted to the shared decimal representation.
type DecimalAsset struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

// PoolInfo identifies a pool and its fixed, ordered asset list.
type PoolInfo struct {
	Address string   `json:"address"`
	Assets  []string `json:"assets"`
}

// Validate checks that the pool has an address and at least two distinct assets.
func (p PoolInfo) Validate() error {
	if strings.TrimSpace(p.Address) == "" {
		return &ConfigError{Field: "pool.address", Err: fmt.Errorf("must not be empty")}
	}
	if len(p.Assets) < 2 {
		return &ConfigError{Field: "pool.assets", Err: fmt.Errorf("need at least 2 assets, got %d", len(p.Assets))}
	}
	seen := make(map[string]bool, len(p.Assets))
	for _, denom := range p.Assets {
		if denom == "" {
			return &ConfigError{Field: "pool.assets", Err: fmt.Errorf("empty denom")}
		}
		if seen[denom] {
			return &ConfigError{Field: "pool.assets", Err: fmt.Errorf("duplicate denom %s", denom)}
		}
		seen[denom] = true
	}
	return nil
}

// Precisions is an in-memory PrecisionResolver keyed by denom.
type Precisions map[string]uint8

// Precision returns the decimal places registered for denom.
func (p Precisions) Precision(denom string) (uint8, error) {
	v, ok := p[denom]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, denom)
	}
	return v, nil
}
