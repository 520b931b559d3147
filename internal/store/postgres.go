package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/model"
)

// DBTX is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// letting every query run against the pool or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// WithTx runs fn inside a single transaction. The per-user advisory lock
// taken via Tx.LockUser is released by PostgreSQL when the transaction ends,
// on commit and rollback alike.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	view := &postgresTx{
		PostgresStore: &PostgresStore{pool: s.pool, db: pgTx},
		tx:            pgTx,
	}

	if err := fn(ctx, view); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// postgresTx is the transactional view of a PostgresStore.
type postgresTx struct {
	*PostgresStore
	tx pgx.Tx
}

// LockUser blocks until the session-exclusive advisory lock for the user is
// acquired. pg_advisory_xact_lock is scoped to the current transaction, so
// the lock is held for the remainder of it and released automatically.
func (t *postgresTx) LockUser(ctx context.Context, userID int64) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return fmt.Errorf("acquire user lock %d: %w", userID, err)
	}
	return nil
}

// --- Instrument directory ---

func (s *PostgresStore) GetInstrument(ctx context.Context, id int64) (*model.Instrument, error) {
	var inst model.Instrument
	err := s.db.QueryRow(ctx,
		`SELECT id, ticker, name, kind FROM instruments WHERE id = $1`, id).
		Scan(&inst.ID, &inst.Ticker, &inst.Name, &inst.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("instrument with id %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument %d: %w", id, err)
	}
	return &inst, nil
}

func (s *PostgresStore) GetInstruments(ctx context.Context, ids []int64) (map[int64]*model.Instrument, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, ticker, name, kind FROM instruments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*model.Instrument, len(ids))
	for rows.Next() {
		var inst model.Instrument
		if err := rows.Scan(&inst.ID, &inst.Ticker, &inst.Name, &inst.Kind); err != nil {
			return nil, err
		}
		out[inst.ID] = &inst
	}
	return out, rows.Err()
}

func (s *PostgresStore) SearchInstruments(ctx context.Context, query string, limit, offset int) ([]model.Instrument, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, ticker, name, kind
		 FROM instruments
		 WHERE $1 = '' OR ticker ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%'
		 ORDER BY ticker
		 LIMIT $2 OFFSET $3`,
		query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		if err := rows.Scan(&inst.ID, &inst.Ticker, &inst.Name, &inst.Kind); err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// --- Price feed ---

func (s *PostgresStore) GetLatestPrice(ctx context.Context, instrumentID int64) (*model.PricePoint, error) {
	var p model.PricePoint
	var closeS string
	var prevS *string

	err := s.db.QueryRow(ctx,
		`SELECT instrument_id, close::TEXT, previousclose::TEXT, date
		 FROM marketdata
		 WHERE instrument_id = $1
		 ORDER BY date DESC
		 LIMIT 1`, instrumentID).
		Scan(&p.InstrumentID, &closeS, &prevS, &p.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest price for instrument %d: %w", instrumentID, err)
	}

	p.Close, _ = decimal.NewFromString(closeS)
	if prevS != nil {
		p.PreviousClose, _ = decimal.NewFromString(*prevS)
	}
	return &p, nil
}

// --- Orders ---

func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO orders (id, user_id, instrument_id, side, type, size, price, status, datetime)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8, $9)`,
		o.ID, o.UserID, o.InstrumentID, o.Side, o.Type,
		o.Size, o.Price.String(), o.Status, o.Datetime,
	)
	return err
}

const orderColumns = `o.id, o.user_id, o.instrument_id, o.side, o.type, o.size,
	o.price::TEXT, o.status, o.datetime,
	i.id, i.ticker, i.name, i.kind`

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	// A malformed id would fail the UUID cast with a type error, not an
	// empty result set.
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFoundf("order with id %s not found", id)
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE o.id = $1`, id)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("order with id %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("order with id %s not found", id)
	}
	return nil
}

func (s *PostgresStore) GetFilledOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.queryFilledOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE o.user_id = $1 AND o.status = 'FILLED'
		 ORDER BY o.datetime`, userID)
}

func (s *PostgresStore) GetFilledOrdersBefore(ctx context.Context, userID int64, to time.Time) ([]model.Order, error) {
	return s.queryFilledOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE o.user_id = $1 AND o.status = 'FILLED' AND o.datetime < $2
		 ORDER BY o.datetime`, userID, to)
}

func (s *PostgresStore) GetFilledOrdersFrom(ctx context.Context, userID int64, from time.Time) ([]model.Order, error) {
	return s.queryFilledOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE o.user_id = $1 AND o.status = 'FILLED' AND o.datetime >= $2
		 ORDER BY o.datetime`, userID, from)
}

func (s *PostgresStore) GetFilledOrdersBetween(ctx context.Context, userID int64, from, to time.Time) ([]model.Order, error) {
	return s.queryFilledOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 JOIN instruments i ON i.id = o.instrument_id
		 WHERE o.user_id = $1 AND o.status = 'FILLED' AND o.datetime >= $2 AND o.datetime < $3
		 ORDER BY o.datetime`, userID, from, to)
}

func (s *PostgresStore) queryFilledOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// scanOrder reads one order row (joined with its instrument) from a pgx row.
func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var inst model.Instrument
	var priceS string

	err := row.Scan(&o.ID, &o.UserID, &o.InstrumentID, &o.Side, &o.Type, &o.Size,
		&priceS, &o.Status, &o.Datetime,
		&inst.ID, &inst.Ticker, &inst.Name, &inst.Kind)
	if err != nil {
		return nil, err
	}

	o.Price, _ = decimal.NewFromString(priceS)
	o.Instrument = &inst
	return &o, nil
}

// --- Portfolio snapshots ---

func (s *PostgresStore) GetLatestSnapshotBefore(ctx context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, user_id, snapshot_date, available_cash::TEXT, positions
		 FROM portfolio_snapshots
		 WHERE user_id = $1 AND snapshot_date < $2
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, userID, date)
	return scanSnapshot(row)
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, userID int64, date time.Time) (*model.PortfolioSnapshot, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, user_id, snapshot_date, available_cash::TEXT, positions
		 FROM portfolio_snapshots
		 WHERE user_id = $1 AND snapshot_date = $2`, userID, date)
	return scanSnapshot(row)
}

// SaveSnapshot writes an end-of-day snapshot. The UNIQUE (user_id,
// snapshot_date) index plus DO NOTHING makes the write exactly-once even
// when two valuations race on the same day.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.PortfolioSnapshot) error {
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("serialize snapshot positions: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO portfolio_snapshots (id, user_id, snapshot_date, available_cash, positions)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 ON CONFLICT (user_id, snapshot_date) DO NOTHING`,
		snap.ID, snap.UserID, snap.Date, snap.AvailableCash.String(), positions,
	)
	return err
}

func scanSnapshot(row pgx.Row) (*model.PortfolioSnapshot, error) {
	var snap model.PortfolioSnapshot
	var cashS string
	var positions []byte

	err := row.Scan(&snap.ID, &snap.UserID, &snap.Date, &cashS, &positions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	snap.AvailableCash, _ = decimal.NewFromString(cashS)
	if err := json.Unmarshal(positions, &snap.Positions); err != nil {
		return nil, fmt.Errorf("deserialize snapshot positions: %w", err)
	}
	return &snap, nil
}
