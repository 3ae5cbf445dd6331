package event

import (
	"sync"
)

// Block and swap events are pooled; the sequencer releases them once applied.
//
// Usage:
//
//	ev := AcquireBlockEvent()
//	ev.Seq, ev.Height, ev.Time = seq, height, ts
//	inbox <- ev
var blockPool = sync.Pool{
	New: func() interface{} {
		return &BlockEvent{}
	},
}

// AcquireBlockEvent gets a zeroed BlockEvent from the pool.
func AcquireBlockEvent() *BlockEvent {
	return blockPool.Get().(*BlockEvent)
}

// ReleaseBlockEvent returns a BlockEvent to the pool.
func ReleaseBlockEvent(ev *BlockEvent) {
	if ev == nil {
		return
	}
	*ev = BlockEvent{}
	blockPool.Put(ev)
}

var swapPool = sync.Pool{
	New: func() interface{} {
		return &SwapEvent{}
	},
}

// AcquireSwapEvent gets a zeroed SwapEvent from the pool.
func AcquireSwapEvent() *SwapEvent {
	return swapPool.Get().(*SwapEvent)
}

// ReleaseSwapEvent returns a SwapEvent to the pool.
// The amounts are dropped, not reused, since consumers may keep them.
func ReleaseSwapEvent(ev *SwapEvent) {
	if ev == nil {
		return
	}
	*ev = SwapEvent{}
	swapPool.Put(ev)
}

// Release returns any pooled event to its pool.
func Release(ev Event) {
	switch e := ev.(type) {
	case *BlockEvent:
		ReleaseBlockEvent(e)
	case *SwapEvent:
		ReleaseSwapEvent(e)
	}
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	blocks := make([]*BlockEvent, 0, batchSize)
	swaps := make([]*SwapEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		blocks = append(blocks, AcquireBlockEvent())
		swaps = append(swaps, AcquireSwapEvent())
	}
	for i := range blocks {
		ReleaseBlockEvent(blocks[i])
		ReleaseSwapEvent(swaps[i])
	}
}
