package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"liquidity_go/internal/domain"

	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDB is a persistent key-value store for pool state.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB database at the specified path.
func OpenLevelDB(path string) (*LevelDB, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// PoolStore returns the transactional state handle of one pool.
// Writers are serialized per handle; use one handle per pool.
func (l *LevelDB) PoolStore(poolID string) domain.PoolStore {
	return &levelPool{db: l.db, prefix: "pool/" + poolID + "/", poolID: poolID}
}

type getter interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}

type levelPool struct {
	mu     sync.Mutex
	db     *leveldb.DB
	prefix string
	poolID string
}

type levelMeta struct {
	Capacity int `json:"capacity"`
	Head     int `json:"head"`
	Length   int `json:"length"`
}

type levelPrecommit struct {
	BaseAmount  string `json:"base_amount"`
	QuoteAmount string `json:"quote_amount"`
	Timestamp   uint64 `json:"precommit_ts"`
}

func (p *levelPool) Init(ctx context.Context, capacity int, ob domain.OrderbookState) error {
	if err := checkInit(capacity, ob); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.newState(p.db, false)
	meta, err := st.loadMeta()
	if err != nil {
		return err
	}
	if meta != nil {
		if meta.Capacity != capacity {
			return layoutChanged(meta.Capacity, capacity)
		}
		return nil
	}

	st.meta = levelMeta{Capacity: capacity, Head: capacity - 1}
	if err := st.put("meta", st.meta); err != nil {
		return err
	}
	if err := st.put("orderbook", ob); err != nil {
		return err
	}
	return st.commit()
}

func (p *levelPool) Update(ctx context.Context, fn func(domain.PoolState) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	st := p.newState(p.db, false)
	if err := st.mustLoadMeta(); err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return st.commit()
}

func (p *levelPool) View(ctx context.Context, fn func(domain.PoolState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := p.db.GetSnapshot()
	if err != nil {
		return domain.NewStorageError("snapshot", err)
	}
	defer snap.Release()

	st := p.newState(snap, true)
	if err := st.mustLoadMeta(); err != nil {
		return err
	}
	return fn(st)
}

func (p *levelPool) newState(r getter, readOnly bool) *levelState {
	return &levelState{
		db:       p.db,
		reader:   r,
		prefix:   p.prefix,
		poolID:   p.poolID,
		pending:  make(map[string][]byte),
		batch:    new(leveldb.Batch),
		readOnly: readOnly,
	}
}

// levelState stages writes in a batch; reads see staged values first.
type levelState struct {
	db       *leveldb.DB
	reader   getter
	prefix   string
	poolID   string
	meta     levelMeta
	pending  map[string][]byte
	batch    *leveldb.Batch
	readOnly bool
}

func (s *levelState) key(name string) []byte {
	return []byte(s.prefix + name)
}

func slotKey(slot int) string {
	return fmt.Sprintf("obs/%08d", slot)
}

func (s *levelState) get(name string, v interface{}) (bool, error) {
	raw, ok := s.pending[name]
	if !ok {
		var err error
		raw, err = s.reader.Get(s.key(name), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, domain.NewStorageError("get "+name, err)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, domain.NewStorageError("decode "+name, err)
	}
	return true, nil
}

func (s *levelState) put(name string, v interface{}) error {
	if s.readOnly {
		return domain.NewStorageError("put "+name, errReadOnly)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return domain.NewStorageError("encode "+name, err)
	}
	s.pending[name] = raw
	s.batch.Put(s.key(name), raw)
	return nil
}

func (s *levelState) commit() error {
	if s.batch.Len() == 0 {
		return nil
	}
	return domain.NewStorageError("commit", s.db.Write(s.batch, &opt.WriteOptions{Sync: true}))
}

func (s *levelState) loadMeta() (*levelMeta, error) {
	var meta levelMeta
	found, err := s.get("meta", &meta)
	if err != nil || !found {
		return nil, err
	}
	return &meta, nil
}

func (s *levelState) mustLoadMeta() error {
	meta, err := s.loadMeta()
	if err != nil {
		return err
	}
	if meta == nil {
		return notInitialized(s.poolID)
	}
	s.meta = *meta
	return nil
}

func (s *levelState) Capacity() int { return s.meta.Capacity }
func (s *levelState) Len() int      { return s.meta.Length }
func (s *levelState) Head() int     { return s.meta.Head }

func (s *levelState) ReadLast() (*domain.Observation, error) {
	if s.meta.Length == 0 {
		return nil, nil
	}
	return s.ReadAt(s.meta.Head)
}

func (s *levelState) ReadAt(index int) (*domain.Observation, error) {
	var obs domain.Observation
	found, err := s.get(slotKey(slotOf(index, s.meta.Capacity)), &obs)
	if err != nil || !found {
		return nil, err
	}
	return &obs, nil
}

func (s *levelState) Push(obs domain.Observation) error {
	meta := s.meta
	meta.Head = slotOf(meta.Head+1, meta.Capacity)
	meta.Length = nextLen(meta.Length, meta.Capacity)

	if err := s.put(slotKey(meta.Head), obs); err != nil {
		return err
	}
	if err := s.put("meta", meta); err != nil {
		return err
	}
	s.meta = meta
	return nil
}

func (s *levelState) LoadPrecommit() (*domain.PrecommitObservation, error) {
	var rec levelPrecommit
	found, err := s.get("precommit", &rec)
	if err != nil || !found {
		return nil, err
	}
	base, err := uint256.FromDecimal(rec.BaseAmount)
	if err != nil {
		return nil, domain.NewStorageError("decode precommit", err)
	}
	quote, err := uint256.FromDecimal(rec.QuoteAmount)
	if err != nil {
		return nil, domain.NewStorageError("decode precommit", err)
	}
	return &domain.PrecommitObservation{BaseAmount: base, QuoteAmount: quote, Timestamp: rec.Timestamp}, nil
}

func (s *levelState) SavePrecommit(p domain.PrecommitObservation) error {
	p = p.Clone()
	return s.put("precommit", levelPrecommit{
		BaseAmount:  p.BaseAmount.Dec(),
		QuoteAmount: p.QuoteAmount.Dec(),
		Timestamp:   p.Timestamp,
	})
}

func (s *levelState) LoadOrderbook() (*domain.OrderbookState, error) {
	var ob domain.OrderbookState
	found, err := s.get("orderbook", &ob)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notInitialized(s.poolID)
	}
	return &ob, nil
}

func (s *levelState) SaveOrderbook(ob *domain.OrderbookState) error {
	return s.put("orderbook", ob)
}
