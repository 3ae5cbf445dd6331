package domain

import (
	"time"
)

// AssetInfo represents precision metadata for a pool asset
type AssetInfo struct {
	Denom     string    `gorm:"primaryKey" json:"denom"`
	Decimals  uint8     `json:"decimals"`
	IsActive  bool      `json:"is_active" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
