package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"liquidity_go/internal/event"

	"github.com/holiman/uint256"
)

// PoolRunner is the pool side of the sequencer.
type PoolRunner interface {
	RunAccumulation(ctx context.Context, blockTime uint64) error
	RecordSwap(ctx context.Context, base, quote *uint256.Int, blockTime uint64) error
}

// EventRecorder receives per-event processing latency.
type EventRecorder interface {
	RecordEvent(latencyNs int64)
	RecordError()
}

// Status is the externally visible sequencer position.
type Status struct {
	NextSeq      uint64 `json:"next_seq"`
	Height       int64  `json:"height"`
	BlockTime    uint64 `json:"block_time"`
	PendingSwaps int    `json:"pending_swaps"`
}

type pendingSwap struct {
	Height int64        `json:"height"`
	TxHash string       `json:"tx_hash"`
	Base   *uint256.Int `json:"base"`
	Quote  *uint256.Int `json:"quote"`
}

// maxPendingSwaps bounds swaps seen ahead of their block.
const maxPendingSwaps = 1024

// Sequencer is the core single-threaded event processor. It is the only
// writer of pool state, so every accumulation and swap commits in event order.
type Sequencer struct {
	inbox     chan event.Event
	pool      PoolRunner
	metrics   EventRecorder
	nextSeq   uint64
	height    int64
	blockTime uint64
	pending   []pendingSwap

	mu     sync.RWMutex // guards status for external reads
	status Status
}

// NewSequencer creates a new sequencer instance. metrics may be nil.
func NewSequencer(inboxSize int, pool PoolRunner, metrics EventRecorder) *Sequencer {
	return &Sequencer{
		inbox:   make(chan event.Event, inboxSize),
		pool:    pool,
		metrics: metrics,
		nextSeq: 1,
		status:  Status{NextSeq: 1},
	}
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			s.processEvent(ctx, ev)
		}
	}
}

func (s *Sequencer) processEvent(ctx context.Context, ev event.Event) {
	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	start := time.Now()

	// 2. Logic Dispatch
	switch e := ev.(type) {
	case *event.BlockEvent:
		s.handleBlock(ctx, e)
	case *event.SwapEvent:
		s.handleSwap(ctx, e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
	event.Release(ev)

	// 3. Increment Sequence
	s.nextSeq++
	s.publish()

	if s.metrics != nil {
		s.metrics.RecordEvent(time.Since(start).Nanoseconds())
	}
}

// handleBlock runs accumulation for the new block first, then applies the swaps
// of that block that arrived ahead of it.
func (s *Sequencer) handleBlock(ctx context.Context, e *event.BlockEvent) {
	if e.Height <= s.height {
		slog.Warn("Stale block ignored", slog.Int64("height", e.Height), slog.Int64("current", s.height))
		return
	}
	s.height = e.Height
	s.blockTime = e.Time

	if err := s.pool.RunAccumulation(ctx, e.Time); err != nil {
		s.fail("accumulation failed", err, slog.Int64("height", e.Height))
	}

	kept := s.pending[:0]
	for _, p := range s.pending {
		switch {
		case p.Height == s.height:
			s.recordSwap(ctx, p)
		case p.Height > s.height:
			kept = append(kept, p)
		default:
			slog.Warn("Swap for skipped block dropped", slog.Int64("height", p.Height), slog.String("tx", p.TxHash))
		}
	}
	s.pending = kept
}

func (s *Sequencer) handleSwap(ctx context.Context, e *event.SwapEvent) {
	p := pendingSwap{Height: e.Height, TxHash: e.TxHash, Base: e.BaseAmount, Quote: e.QuoteAmount}

	switch {
	case e.Height == s.height:
		s.recordSwap(ctx, p)
	case e.Height > s.height:
		if len(s.pending) >= maxPendingSwaps {
			slog.Warn("Pending swap queue full, dropping oldest", slog.Int64("height", s.pending[0].Height))
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, p)
	default:
		slog.Warn("Late swap dropped", slog.Int64("height", e.Height), slog.Int64("current", s.height), slog.String("tx", e.TxHash))
	}
}

func (s *Sequencer) recordSwap(ctx context.Context, p pendingSwap) {
	if err := s.pool.RecordSwap(ctx, p.Base, p.Quote, s.blockTime); err != nil {
		s.fail("swap not recorded", err, slog.String("tx", p.TxHash))
	}
}

// fail logs a pool error. The store already rolled the call back, so the
// sequencer keeps going with the next event.
func (s *Sequencer) fail(msg string, err error, attrs ...any) {
	if s.metrics != nil {
		s.metrics.RecordError()
	}
	slog.Error(msg, append(attrs, slog.Any("error", err))...)
}

func (s *Sequencer) publish() {
	s.mu.Lock()
	s.status = Status{
		NextSeq:      s.nextSeq,
		Height:       s.height,
		BlockTime:    s.blockTime,
		PendingSwaps: len(s.pending),
	}
	s.mu.Unlock()
}

// Status returns the current position (external read).
func (s *Sequencer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq   uint64        `json:"next_seq"`
		Height    int64         `json:"height"`
		BlockTime uint64        `json:"block_time"`
		Pending   []pendingSwap `json:"pending"`
	}{
		NextSeq:   s.nextSeq,
		Height:    s.height,
		BlockTime: s.blockTime,
		Pending:   s.pending,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
