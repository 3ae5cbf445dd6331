// Package event defines the chain events fed into the sequencer.
package event

import (
	"github.com/holiman/uint256"
)

// Type identifies an event kind.
type Type string

const (
	TypeBlock Type = "BLOCK"
	TypeSwap  Type = "SWAP"
)

// Event is anything the sequencer can apply. Seq numbers are contiguous from 1.
type Event interface {
	GetSeq() uint64
	GetType() Type
}

// BaseEvent carries the sequence number and the chain height the event belongs to.
type BaseEvent struct {
	Seq    uint64 `json:"seq"`
	Height int64  `json:"height"`
}

func (e *BaseEvent) GetSeq() uint64 { return e.Seq }

// BlockEvent announces a committed block.
type BlockEvent struct {
	BaseEvent
	Time uint64 `json:"time"` // unix seconds
}

func (e *BlockEvent) GetType() Type { return TypeBlock }

// SwapEvent is a swap executed against the pool.
type SwapEvent struct {
	BaseEvent
	TxHash      string       `json:"tx_hash"`
	BaseAmount  *uint256.Int `json:"base_amount"`
	QuoteAmount *uint256.Int `json:"quote_amount"`
}

func (e *SwapEvent) GetType() Type { return TypeSwap }
