package storage

import (
	"errors"
	"fmt"

	"liquidity_go/internal/domain"
)

var errReadOnly = errors.New("write attempted in read-only view")

// slotOf maps any index onto [0, capacity).
func slotOf(index, capacity int) int {
	return ((index % capacity) + capacity) % capacity
}

func nextLen(length, capacity int) int {
	return min(length+1, capacity)
}

func checkInit(capacity int, ob domain.OrderbookState) error {
	if capacity <= 0 {
		return &domain.ConfigError{Field: "observations_capacity", Err: fmt.Errorf("must be positive, got %d", capacity)}
	}
	return ob.Validate(capacity)
}

func layoutChanged(have, want int) error {
	return fmt.Errorf("%w: capacity %d, requested %d", domain.ErrLayoutChanged, have, want)
}

func notInitialized(poolID string) error {
	return domain.NewStorageError("load", fmt.Errorf("%w: %s", domain.ErrNotInitialized, poolID))
}
