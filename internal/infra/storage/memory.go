package storage

import (
	"context"
	"sync"

	"liquidity_go/internal/domain"
)

// MemoryStore keeps pool state in process memory. Update works on a copy that
// replaces the live state only when the callback succeeds.
type MemoryStore struct {
	mu     sync.Mutex
	poolID string
	state  *memState
}

// NewMemoryStore creates an uninitialized in-memory pool store.
func NewMemoryStore(poolID string) *MemoryStore {
	return &MemoryStore{poolID: poolID}
}

// Init implements domain.PoolStore.
func (s *MemoryStore) Init(_ context.Context, capacity int, ob domain.OrderbookState) error {
	if err := checkInit(capacity, ob); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		if s.state.capacity != capacity {
			return layoutChanged(s.state.capacity, capacity)
		}
		return nil
	}
	s.state = &memState{
		capacity:  capacity,
		head:      capacity - 1,
		slots:     make([]*domain.Observation, capacity),
		orderbook: ob,
	}
	return nil
}

// Update implements domain.PoolStore.
func (s *MemoryStore) Update(ctx context.Context, fn func(domain.PoolState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return notInitialized(s.poolID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(working); err != nil {
		return err
	}
	s.state = working
	return nil
}

// View implements domain.PoolStore.
func (s *MemoryStore) View(ctx context.Context, fn func(domain.PoolState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return notInitialized(s.poolID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	snapshot.readOnly = true
	return fn(snapshot)
}

type memState struct {
	capacity  int
	head      int
	length    int
	slots     []*domain.Observation
	precommit *domain.PrecommitObservation
	orderbook domain.OrderbookState
	readOnly  bool
}

// clone copies the slot table; observations themselves are immutable.
func (m *memState) clone() *memState {
	c := *m
	c.slots = append([]*domain.Observation(nil), m.slots...)
	if m.precommit != nil {
		p := m.precommit.Clone()
		c.precommit = &p
	}
	return &c
}

func (m *memState) Capacity() int { return m.capacity }
func (m *memState) Len() int      { return m.length }
func (m *memState) Head() int     { return m.head }

func (m *memState) ReadLast() (*domain.Observation, error) {
	if m.length == 0 {
		return nil, nil
	}
	return m.ReadAt(m.head)
}

func (m *memState) ReadAt(index int) (*domain.Observation, error) {
	obs := m.slots[slotOf(index, m.capacity)]
	if obs == nil {
		return nil, nil
	}
	out := *obs
	return &out, nil
}

func (m *memState) Push(obs domain.Observation) error {
	if m.readOnly {
		return domain.NewStorageError("push", errReadOnly)
	}
	m.head = slotOf(m.head+1, m.capacity)
	m.slots[m.head] = &obs
	m.length = nextLen(m.length, m.capacity)
	return nil
}

func (m *memState) LoadPrecommit() (*domain.PrecommitObservation, error) {
	if m.precommit == nil {
		return nil, nil
	}
	p := m.precommit.Clone()
	return &p, nil
}

func (m *memState) SavePrecommit(p domain.PrecommitObservation) error {
	if m.readOnly {
		return domain.NewStorageError("save precommit", errReadOnly)
	}
	c := p.Clone()
	m.precommit = &c
	return nil
}

func (m *memState) LoadOrderbook() (*domain.OrderbookState, error) {
	ob := m.orderbook
	return &ob, nil
}

func (m *memState) SaveOrderbook(s *domain.OrderbookState) error {
	if m.readOnly {
		return domain.NewStorageError("save orderbook", errReadOnly)
	}
	m.orderbook = *s
	return nil
}
