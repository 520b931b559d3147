// Package store defines the persistence interface for the order engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for instrument and price lookups), and in-memory (for testing).
package store

import (
	"context"
	"time"

	"github.com/jbmild/cocos/internal/model"
)

// Store is the persistence interface. The order table is append-only apart
// from the NEW → CANCELLED status transition; snapshots are written at most
// once per (user, date) and never updated.
//
// Range queries over filled orders use half-open [from, to) bounds on the
// order datetime and always return rows in ascending datetime order.
type Store interface {
	// --- Instrument directory ---

	// GetInstrument retrieves an instrument by ID. Missing instruments
	// surface apperr.ErrNotFound.
	GetInstrument(ctx context.Context, id int64) (*model.Instrument, error)

	// GetInstruments resolves a set of instrument IDs. Unknown IDs are
	// simply absent from the result map.
	GetInstruments(ctx context.Context, ids []int64) (map[int64]*model.Instrument, error)

	// SearchInstruments finds instruments whose ticker or name contains the
	// query (case-insensitive), ordered by ticker. An empty query lists all.
	SearchInstruments(ctx context.Context, query string, limit, offset int) ([]model.Instrument, error)

	// --- Price feed ---

	// GetLatestPrice returns the most recent price point for an instrument,
	// or nil when no market data exists.
	GetLatestPrice(ctx context.Context, instrumentID int64) (*model.PricePoint, error)

	// --- Orders ---

	// InsertOrder persists a new order exactly once.
	InsertOrder(ctx context.Context, o *model.Order) error

	// GetOrder retrieves an order by ID with its instrument hydrated.
	// Missing orders surface apperr.ErrNotFound.
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// UpdateOrderStatus applies a status transition to an existing order.
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error

	// GetFilledOrders returns every FILLED order for a user.
	GetFilledOrders(ctx context.Context, userID int64) ([]model.Order, error)

	// GetFilledOrdersBefore returns FILLED orders with datetime < to.
	GetFilledOrdersBefore(ctx context.Context, userID int64, to time.Time) ([]model.Order, error)

	// GetFilledOrdersFrom returns FILLED orders with datetime >= from.
	GetFilledOrdersFrom(ctx context.Context, userID int64, from time.Time) ([]model.Order, error)

	// GetFilledOrdersBetween returns FILLED orders with from <= datetime < to.
	GetFilledOrdersBetween(ctx context.Context, userID int64, from, to time.Time) ([]model.Order, error)

	// --- Portfolio snapshots ---

	// GetLatestSnapshotBefore returns the newest snapshot dated strictly
	// before the given date, or nil when none exists.
	GetLatestSnapshotBefore(ctx context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error)

	// GetSnapshot returns the snapshot for the exact date, or nil.
	GetSnapshot(ctx context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error)

	// SaveSnapshot persists an end-of-day snapshot. A snapshot already
	// present for the same (user, date) is left untouched.
	SaveSnapshot(ctx context.Context, s *model.PortfolioSnapshot) error

	// --- Transactions ---

	// WithTx runs fn inside one atomic transaction. Any error from fn rolls
	// the whole transaction back; nothing is ever left half-applied.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is a transactional view of the store. LockUser acquires a blocking
// exclusive per-user lock scoped to the transaction: it is released
// automatically at commit or rollback, and because it lives in the shared
// store it serializes order creation and cancellation for one user across
// every process sharing that store.
type Tx interface {
	Store

	LockUser(ctx context.Context, userID int64) error
}
