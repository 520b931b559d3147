package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jbmild/cocos/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot lookups on the order-creation path: instrument records
// and latest prices. Orders and snapshots always hit the primary, and
// transactions go straight to the primary so the feasibility check never
// reads stale state.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetInstrument(ctx context.Context, id int64) (*model.Instrument, error) {
	data, err := s.rdb.Get(ctx, instrumentKey(id)).Bytes()
	if err == nil {
		var inst model.Instrument
		if json.Unmarshal(data, &inst) == nil {
			return &inst, nil
		}
	}

	inst, err := s.primary.GetInstrument(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(inst); err == nil {
		s.rdb.Set(ctx, instrumentKey(id), data, s.ttl)
	}
	return inst, nil
}

func (s *CachedStore) GetLatestPrice(ctx context.Context, instrumentID int64) (*model.PricePoint, error) {
	data, err := s.rdb.Get(ctx, priceKey(instrumentID)).Bytes()
	if err == nil {
		var p model.PricePoint
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetLatestPrice(ctx, instrumentID)
	if err != nil || p == nil {
		// A missing price is not cached; the feed may fill in at any time.
		return p, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, priceKey(instrumentID), data, s.ttl)
	}
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetInstruments(ctx context.Context, ids []int64) (map[int64]*model.Instrument, error) {
	return s.primary.GetInstruments(ctx, ids)
}

func (s *CachedStore) SearchInstruments(ctx context.Context, query string, limit, offset int) ([]model.Instrument, error) {
	return s.primary.SearchInstruments(ctx, query, limit, offset)
}

func (s *CachedStore) InsertOrder(ctx context.Context, o *model.Order) error {
	return s.primary.InsertOrder(ctx, o)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	return s.primary.UpdateOrderStatus(ctx, id, status)
}

func (s *CachedStore) GetFilledOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.primary.GetFilledOrders(ctx, userID)
}

func (s *CachedStore) GetFilledOrdersBefore(ctx context.Context, userID int64, to time.Time) ([]model.Order, error) {
	return s.primary.GetFilledOrdersBefore(ctx, userID, to)
}

func (s *CachedStore) GetFilledOrdersFrom(ctx context.Context, userID int64, from time.Time) ([]model.Order, error) {
	return s.primary.GetFilledOrdersFrom(ctx, userID, from)
}

func (s *CachedStore) GetFilledOrdersBetween(ctx context.Context, userID int64, from, to time.Time) ([]model.Order, error) {
	return s.primary.GetFilledOrdersBetween(ctx, userID, from, to)
}

func (s *CachedStore) GetLatestSnapshotBefore(ctx context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error) {
	return s.primary.GetLatestSnapshotBefore(ctx, userID, date)
}

func (s *CachedStore) GetSnapshot(ctx context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error) {
	return s.primary.GetSnapshot(ctx, userID, date)
}

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.PortfolioSnapshot) error {
	return s.primary.SaveSnapshot(ctx, snap)
}

// WithTx delegates to the primary store; the transactional view reads and
// writes the source of truth directly, bypassing the cache.
func (s *CachedStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.primary.WithTx(ctx, fn)
}

// --- Cache keys ---

func instrumentKey(id int64) string { return fmt.Sprintf("instrument:%d", id) }
func priceKey(id int64) string      { return fmt.Sprintf("price:%d", id) }
