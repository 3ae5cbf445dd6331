package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"liquidity_go/internal/event"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
)

const (
	newBlockQuery = "tm.event='NewBlock'"
	readTimeout   = 60 * time.Second
	dialTimeout   = 10 * time.Second
	// seenTxWindow is how many blocks a swap tx hash is remembered for de-duplication.
	seenTxWindow = 16
)

// FeedRecorder receives connection metrics.
type FeedRecorder interface {
	IncrementConnections()
	DecrementConnections()
	RecordReconnect()
	SetHeight(height int64)
}

// FeedConfig selects the node and the swap events to follow.
type FeedConfig struct {
	URL       string
	SwapQuery string
	// EventType is the event carrying the swap attributes, e.g. "wasm".
	EventType string
	// BaseDenom is the first pool asset; swap amounts are oriented so base is its side.
	BaseDenom string
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	ID      int         `json:"id"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result *struct {
		Query string `json:"query"`
		Data  struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"data"`
		Events map[string][]string `json:"events"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    string `json:"data"`
	} `json:"error"`
}

type newBlockValue struct {
	Block struct {
		Header struct {
			Height string    `json:"height"`
			Time   time.Time `json:"time"`
		} `json:"header"`
	} `json:"block"`
}

// BlockFeed follows NewBlock and swap tx events of a CometBFT node and turns them
// into sequenced events. It implements domain.ExchangeWorker.
type BlockFeed struct {
	cfg     FeedConfig
	inbox   chan<- event.Event
	metrics FeedRecorder
	logger  *slog.Logger

	// owned by the read loop
	seq        uint64
	lastHeight int64
	seenTx     map[string]int64

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewBlockFeed creates a feed writing to inbox. metrics may be nil.
func NewBlockFeed(cfg FeedConfig, inbox chan<- event.Event, metrics FeedRecorder) *BlockFeed {
	if cfg.EventType == "" {
		cfg.EventType = "wasm"
	}
	return &BlockFeed{
		cfg:     cfg,
		inbox:   inbox,
		metrics: metrics,
		logger:  slog.Default().With("module", "feed"),
		seenTx:  make(map[string]int64),
	}
}

// Connect starts the WebSocket connection
func (f *BlockFeed) Connect(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether a subscription is live.
func (f *BlockFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Disconnect stops the feed and waits for the read loop to exit.
func (f *BlockFeed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConnection()
	f.wg.Wait()
}

func newReconnectBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0 // retry forever
	return bo
}

func (f *BlockFeed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()
	bo := newReconnectBackOff()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			delay := bo.NextBackOff()
			f.logger.Warn("Chain feed connection failed", slog.Any("error", err), slog.Duration("retry_in", delay))
			if f.metrics != nil {
				f.metrics.RecordReconnect()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		bo.Reset()
		f.readLoop(ctx)
	}
}

func (f *BlockFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, make(http.Header))
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()
	if f.metrics != nil {
		f.metrics.IncrementConnections()
	}

	if err := f.subscribe(); err != nil {
		f.closeConnection()
		return err
	}

	f.logger.Info("Chain feed connected", slog.String("url", f.cfg.URL), slog.Int64("height", f.lastHeight))
	return nil
}

func (f *BlockFeed) subscribe() error {
	for i, query := range []string{newBlockQuery, f.cfg.SwapQuery} {
		b, err := json.Marshal(rpcRequest{
			JSONRPC: "2.0",
			Method:  "subscribe",
			ID:      i + 1,
			Params:  map[string]string{"query": query},
		})
		if err != nil {
			return err
		}
		if err := f.threadSafeWrite(websocket.TextMessage, b); err != nil {
			return fmt.Errorf("subscribe %q: %w", query, err)
		}
	}
	return nil
}

func (f *BlockFeed) threadSafeWrite(msgType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.conn == nil {
		return errors.New("no conn")
	}
	return f.conn.WriteMessage(msgType, data)
}

func (f *BlockFeed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Warn("Chain feed read failed", slog.Any("error", err))
			}
			f.closeConnection()
			return
		}
		if err := f.handleMessage(ctx, msg); err != nil {
			f.logger.Warn("Chain feed message rejected", slog.Any("error", err))
		}
	}
}

func (f *BlockFeed) handleMessage(ctx context.Context, msg []byte) error {
	var resp rpcResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("rpc error %d: %s %s", resp.Error.Code, resp.Error.Message, resp.Error.Data)
	}
	if resp.Result == nil {
		return nil
	}

	switch resp.Result.Data.Type {
	case "tendermint/event/NewBlock":
		var v newBlockValue
		if err := json.Unmarshal(resp.Result.Data.Value, &v); err != nil {
			return fmt.Errorf("decode block: %w", err)
		}
		height, err := strconv.ParseInt(v.Block.Header.Height, 10, 64)
		if err != nil {
			return fmt.Errorf("block height %q: %w", v.Block.Header.Height, err)
		}
		return f.onBlock(ctx, height, v.Block.Header.Time)
	case "tendermint/event/Tx":
		return f.onTx(ctx, resp.Result.Events)
	}
	// Subscription acknowledgements carry an empty result.
	return nil
}

func (f *BlockFeed) onBlock(ctx context.Context, height int64, ts time.Time) error {
	// Replays after a reconnect.
	if height <= f.lastHeight {
		return nil
	}
	if ts.Unix() < 0 {
		return fmt.Errorf("block %d: invalid time %s", height, ts)
	}
	f.lastHeight = height
	f.pruneSeen()
	if f.metrics != nil {
		f.metrics.SetHeight(height)
	}

	ev := event.AcquireBlockEvent()
	ev.Height = height
	ev.Time = uint64(ts.Unix())
	return f.emit(ctx, ev)
}

func (f *BlockFeed) onTx(ctx context.Context, events map[string][]string) error {
	swaps, err := ParseSwaps(events, f.cfg.EventType, f.cfg.BaseDenom)
	if err != nil {
		return err
	}
	for _, s := range swaps {
		if s.Height < f.lastHeight-seenTxWindow {
			continue
		}
		key := fmt.Sprintf("%s/%d", s.TxHash, s.Index)
		if _, dup := f.seenTx[key]; dup {
			continue
		}
		f.seenTx[key] = s.Height

		ev := event.AcquireSwapEvent()
		ev.Height = s.Height
		ev.TxHash = s.TxHash
		ev.BaseAmount = s.Base
		ev.QuoteAmount = s.Quote
		if err := f.emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// emit assigns the next sequence number and blocks until the sequencer accepts the event,
// so sequence numbers stay contiguous.
func (f *BlockFeed) emit(ctx context.Context, ev event.Event) error {
	f.seq++
	switch e := ev.(type) {
	case *event.BlockEvent:
		e.Seq = f.seq
	case *event.SwapEvent:
		e.Seq = f.seq
	}
	select {
	case f.inbox <- ev:
		return nil
	case <-ctx.Done():
		event.Release(ev)
		return ctx.Err()
	}
}

func (f *BlockFeed) pruneSeen() {
	for key, h := range f.seenTx {
		if h < f.lastHeight-seenTxWindow {
			delete(f.seenTx, key)
		}
	}
}

func (f *BlockFeed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
		if f.metrics != nil {
			f.metrics.DecrementConnections()
		}
	}
	f.connected = false
}

// Swap is one swap parsed from tx events.
type Swap struct {
	Height int64
	TxHash string
	Index  int
	Base   *uint256.Int
	Quote  *uint256.Int
}

// ParseSwaps extracts the swaps of one tx from its flattened event attributes.
// A tx may carry several swaps; attribute lists are matched by position.
func ParseSwaps(events map[string][]string, eventType, baseDenom string) ([]Swap, error) {
	first := func(key string) string {
		if v := events[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	height, err := strconv.ParseInt(first("tx.height"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("tx height: %w", err)
	}
	hash := first("tx.hash")

	offerAssets := events[eventType+".offer_asset"]
	offerAmounts := events[eventType+".offer_amount"]
	returnAmounts := events[eventType+".return_amount"]
	if len(offerAmounts) != len(offerAssets) || len(returnAmounts) != len(offerAssets) {
		return nil, fmt.Errorf("tx %s: mismatched swap attributes (%d assets, %d offers, %d returns)",
			hash, len(offerAssets), len(offerAmounts), len(returnAmounts))
	}

	swaps := make([]Swap, 0, len(offerAssets))
	for i, asset := range offerAssets {
		offer, err := uint256.FromDecimal(offerAmounts[i])
		if err != nil {
			return nil, fmt.Errorf("tx %s: offer amount %q: %w", hash, offerAmounts[i], err)
		}
		ret, err := uint256.FromDecimal(returnAmounts[i])
		if err != nil {
			return nil, fmt.Errorf("tx %s: return amount %q: %w", hash, returnAmounts[i], err)
		}

		s := Swap{Height: height, TxHash: hash, Index: i, Base: offer, Quote: ret}
		if asset != baseDenom {
			s.Base, s.Quote = ret, offer
		}
		swaps = append(swaps, s)
	}
	return swaps, nil
}
