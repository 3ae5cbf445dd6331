package domain

import (
	"context"

	"github.com/holiman/uint256"
)

// ExchangeWorker defines the interface for long-lived websocket connectors
type ExchangeWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// PrecisionResolver maps an asset to its decimal precision.
// A miss must be reported as ErrUnknownAsset.
type PrecisionResolver interface {
	Precision(denom string) (uint8, error)
}

// CustodyQuerier reads the balances held on-chain by the pool contract.
// The result has one entry per denom, in the same order.
type CustodyQuerier interface {
	QueryBalances(ctx context.Context, address string, denoms []string) ([]*uint256.Int, error)
}

// VenueQuerier reads the balances of an order-book sub-account.
// Denoms without a position are reported as zero, never as an error.
type VenueQuerier interface {
	QuerySubaccountBalances(ctx context.Context, subaccountID string, denoms []string) ([]*uint256.Int, error)
}

// ObservationBuffer is a fixed-capacity circular sequence of observations.
// Head is the slot of the most recent entry; on an empty buffer it is Capacity()-1.
type ObservationBuffer interface {
	Capacity() int
	Len() int
	Head() int
	ReadLast() (*Observation, error)
	// ReadAt returns nil for a slot that was never written. index is taken modulo Capacity.
	ReadAt(index int) (*Observation, error)
	// Push writes to slot Head()+1, evicting its previous entry.
	Push(obs Observation) error
}

// PrecommitSlot stores at most one pending swap sample.
type PrecommitSlot interface {
	LoadPrecommit() (*PrecommitObservation, error)
	SavePrecommit(p PrecommitObservation) error
}

// OrderbookStore persists the orderbook state of the pool.
type OrderbookStore interface {
	LoadOrderbook() (*OrderbookState, error)
	SaveOrderbook(s *OrderbookState) error
}

// PoolState is the persisted state of one pool as seen inside a transaction.
type PoolState interface {
	ObservationBuffer
	PrecommitSlot
	OrderbookStore
}

// PoolStore gives all-or-nothing access to the persisted state of one pool.
type PoolStore interface {
	// Init creates the buffer with the given capacity and the initial orderbook state.
	// Calling it again with the same capacity keeps the existing state.
	Init(ctx context.Context, capacity int, ob OrderbookState) error
	// Update runs fn in a transaction; nothing written by fn survives an error.
	Update(ctx context.Context, fn func(PoolState) error) error
	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(PoolState) error) error
}
