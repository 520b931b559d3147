package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production: there is no persistence and no
// rollback — writes apply immediately, so a failed "transaction" only
// guarantees the per-user mutual exclusion, not atomicity.
type MemoryStore struct {
	mu          sync.RWMutex
	instruments map[int64]*model.Instrument
	prices      map[int64][]model.PricePoint
	orders      []model.Order
	snapshots   map[int64][]model.PortfolioSnapshot

	lockMu    sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instruments: make(map[int64]*model.Instrument),
		prices:      make(map[int64][]model.PricePoint),
		snapshots:   make(map[int64][]model.PortfolioSnapshot),
		userLocks:   make(map[int64]*sync.Mutex),
	}
}

// AddInstrument seeds an instrument into the directory.
func (s *MemoryStore) AddInstrument(inst model.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[inst.ID] = &inst
}

// AddPrice seeds a market data point for an instrument.
func (s *MemoryStore) AddPrice(p model.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[p.InstrumentID] = append(s.prices[p.InstrumentID], p)
}

// Snapshots returns copies of all snapshots stored for a user, for tests.
func (s *MemoryStore) Snapshots(userID int64) []model.PortfolioSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.PortfolioSnapshot(nil), s.snapshots[userID]...)
}

// --- Instrument directory ---

func (s *MemoryStore) GetInstrument(_ context.Context, id int64) (*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[id]
	if !ok {
		return nil, apperr.NotFoundf("instrument with id %d not found", id)
	}
	cp := *inst
	return &cp, nil
}

func (s *MemoryStore) GetInstruments(_ context.Context, ids []int64) (map[int64]*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]*model.Instrument, len(ids))
	for _, id := range ids {
		if inst, ok := s.instruments[id]; ok {
			cp := *inst
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStore) SearchInstruments(_ context.Context, query string, limit, offset int) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var matches []model.Instrument
	for _, inst := range s.instruments {
		if q == "" ||
			strings.Contains(strings.ToLower(inst.Ticker), q) ||
			strings.Contains(strings.ToLower(inst.Name), q) {
			matches = append(matches, *inst)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Ticker < matches[j].Ticker })

	if offset >= len(matches) {
		return nil, nil
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

// --- Price feed ---

func (s *MemoryStore) GetLatestPrice(_ context.Context, instrumentID int64) (*model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.prices[instrumentID]
	if len(points) == 0 {
		return nil, nil
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.Date.After(latest.Date) {
			latest = p
		}
	}
	return &latest, nil
}

// --- Orders ---

func (s *MemoryStore) InsertOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = append(s.orders, *o)
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.orders {
		if s.orders[i].ID == id {
			cp := s.orders[i]
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("order with id %s not found", id)
}

func (s *MemoryStore) UpdateOrderStatus(_ context.Context, id string, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			return nil
		}
	}
	return apperr.NotFoundf("order with id %s not found", id)
}

func (s *MemoryStore) GetFilledOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.filterFilled(userID, func(time.Time) bool { return true }), nil
}

func (s *MemoryStore) GetFilledOrdersBefore(_ context.Context, userID int64, to time.Time) ([]model.Order, error) {
	return s.filterFilled(userID, func(t time.Time) bool { return t.Before(to) }), nil
}

func (s *MemoryStore) GetFilledOrdersFrom(_ context.Context, userID int64, from time.Time) ([]model.Order, error) {
	return s.filterFilled(userID, func(t time.Time) bool { return !t.Before(from) }), nil
}

func (s *MemoryStore) GetFilledOrdersBetween(_ context.Context, userID int64, from, to time.Time) ([]model.Order, error) {
	return s.filterFilled(userID, func(t time.Time) bool { return !t.Before(from) && t.Before(to) }), nil
}

func (s *MemoryStore) filterFilled(userID int64, keep func(time.Time) bool) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.UserID == userID && o.Status == model.StatusFilled && keep(o.Datetime) {
			result = append(result, o)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Datetime.Before(result[j].Datetime) })
	return result
}

// --- Portfolio snapshots ---

func (s *MemoryStore) GetLatestSnapshotBefore(_ context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.PortfolioSnapshot
	for i := range s.snapshots[userID] {
		snap := &s.snapshots[userID][i]
		if snap.Date.Before(date) && (latest == nil || snap.Date.After(latest.Date)) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.snapshots[userID] {
		snap := s.snapshots[userID][i]
		if snap.Date.Equal(date) {
			return &snap, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.PortfolioSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same exactly-once rule as the UNIQUE index in PostgreSQL.
	for _, existing := range s.snapshots[snap.UserID] {
		if existing.Date.Equal(snap.Date) {
			return nil
		}
	}
	s.snapshots[snap.UserID] = append(s.snapshots[snap.UserID], *snap)
	return nil
}

// --- Transactions ---

// WithTx runs fn against a view that supports per-user locking. Locks taken
// through the view are released when fn returns, mirroring the
// transaction-end release of the PostgreSQL advisory lock.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	view := &memoryTx{MemoryStore: s}
	defer view.releaseLocks()
	return fn(ctx, view)
}

type memoryTx struct {
	*MemoryStore
	held []*sync.Mutex
}

func (t *memoryTx) LockUser(_ context.Context, userID int64) error {
	t.lockMu.Lock()
	mu, ok := t.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		t.userLocks[userID] = mu
	}
	t.lockMu.Unlock()

	mu.Lock()
	t.held = append(t.held, mu)
	return nil
}

func (t *memoryTx) releaseLocks() {
	for _, mu := range t.held {
		mu.Unlock()
	}
	t.held = nil
}
