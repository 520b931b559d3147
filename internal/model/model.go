// Package model defines the core domain types shared across the order engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the economic direction of an order.
type OrderSide string

const (
	SideBuy     OrderSide = "BUY"
	SideSell    OrderSide = "SELL"
	SideCashIn  OrderSide = "CASH_IN"
	SideCashOut OrderSide = "CASH_OUT"
)

// Valid reports whether the side is one of the four known sides.
func (s OrderSide) Valid() bool {
	switch s {
	case SideBuy, SideSell, SideCashIn, SideCashOut:
		return true
	}
	return false
}

// IsCashSide reports whether the side moves money in or out of the account.
func (s OrderSide) IsCashSide() bool {
	return s == SideCashIn || s == SideCashOut
}

// OrderType is the execution style of an order.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// Valid reports whether the type is MARKET or LIMIT.
func (t OrderType) Valid() bool {
	return t == TypeMarket || t == TypeLimit
}

// OrderStatus is the lifecycle state of an order.
// Transitions: NEW → {FILLED, REJECTED} at creation for MARKET orders,
// NEW (resting) at creation for LIMIT orders, NEW → CANCELLED via explicit
// cancellation. FILLED, REJECTED and CANCELLED are terminal.
type OrderStatus string

const (
	StatusNew       OrderStatus = "NEW"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// InstrumentKind categorizes an instrument. The currency kind marks the
// account's designated cash instrument; holdings in it are tracked as
// available cash, never as a security position.
type InstrumentKind string

const (
	KindStock    InstrumentKind = "STOCK"
	KindCurrency InstrumentKind = "CURRENCY"
)

// Instrument is an entry in the instrument directory.
type Instrument struct {
	ID     int64          `json:"id" db:"id"`
	Ticker string         `json:"ticker" db:"ticker"`
	Name   string         `json:"name" db:"name"`
	Kind   InstrumentKind `json:"kind" db:"kind"`
}

// IsCash reports whether the instrument is the designated cash instrument.
// Nil-safe: a missing instrument is never the cash instrument.
func (i *Instrument) IsCash() bool {
	return i != nil && i.Kind == KindCurrency
}

// Order is an immutable record of a buy/sell/cash-transfer instruction.
// Once FILLED, REJECTED or CANCELLED it is never modified; the only
// permitted mutation is the NEW → CANCELLED status transition.
type Order struct {
	ID           string          `json:"id" db:"id"`
	UserID       int64           `json:"user_id" db:"user_id"`
	InstrumentID int64           `json:"instrument_id" db:"instrument_id"`
	Side         OrderSide       `json:"side" db:"side"`
	Type         OrderType       `json:"type" db:"type"`
	Size         int64           `json:"size" db:"size"`   // unit count; currency amount for cash sides
	Price        decimal.Decimal `json:"price" db:"price"` // execution price; always 1 for cash sides
	Status       OrderStatus     `json:"status" db:"status"`
	Datetime     time.Time       `json:"datetime" db:"datetime"`

	// Instrument is the hydrated directory record. Nil only for malformed
	// rows; processors treat a nil instrument as infeasible.
	Instrument *Instrument `json:"instrument,omitempty"`
}

// Value is size × price, the order's cash magnitude.
func (o *Order) Value() decimal.Decimal {
	return decimal.NewFromInt(o.Size).Mul(o.Price)
}

// PricePoint is the latest market data for an instrument.
type PricePoint struct {
	InstrumentID  int64           `json:"instrument_id" db:"instrument_id"`
	Close         decimal.Decimal `json:"close" db:"close"`
	PreviousClose decimal.Decimal `json:"previous_close" db:"previousclose"`
	Date          time.Time       `json:"date" db:"date"`
}

// Position is one instrument's holding during a portfolio fold. TotalCost
// is the cumulative cost basis of the currently held quantity; average
// cost is TotalCost / Quantity.
type Position struct {
	Quantity   int64
	TotalCost  decimal.Decimal
	Instrument *Instrument
}

// AvgCost returns TotalCost / Quantity, or zero for an empty position.
func (p Position) AvgCost() decimal.Decimal {
	if p.Quantity <= 0 {
		return decimal.Zero
	}
	return p.TotalCost.Div(decimal.NewFromInt(p.Quantity))
}

// PositionMap maps instrument ID → position. It is threaded through the
// valuation fold as a reducer value: processors take a map and return the
// updated map, and callers that need a stable point-in-time copy clone it.
type PositionMap map[int64]Position

// Clone returns a copy safe to keep while the original keeps folding.
func (m PositionMap) Clone() PositionMap {
	out := make(PositionMap, len(m))
	for id, p := range m {
		out[id] = p
	}
	return out
}

// Holding is a valued position as exposed on the portfolio view.
type Holding struct {
	InstrumentID int64           `json:"instrument_id"`
	Ticker       string          `json:"ticker"`
	Name         string          `json:"name"`
	Quantity     int64           `json:"quantity"`
	MarketValue  decimal.Decimal `json:"market_value"`
	TotalReturn  decimal.Decimal `json:"total_return"` // % vs average cost
	DailyReturn  decimal.Decimal `json:"daily_return"` // % vs previous close
}

// Portfolio is the computed view of a user's account.
type Portfolio struct {
	UserID        int64           `json:"user_id"`
	TotalValue    decimal.Decimal `json:"total_value"`
	AvailableCash decimal.Decimal `json:"available_cash"`
	Holdings      []Holding       `json:"positions"`

	// Positions is the raw fold result, kept for the order feasibility
	// check. Not part of the external representation.
	Positions PositionMap `json:"-"`
}

// SnapshotPosition is the persisted form of one position inside a snapshot.
// Rehydrating requires re-resolving the instrument record by ID.
type SnapshotPosition struct {
	InstrumentID int64           `json:"instrument_id"`
	Quantity     int64           `json:"quantity"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// PortfolioSnapshot is a persisted end-of-day (cash, positions) rollup used
// to bound replay cost. At most one snapshot exists per (user, date), and a
// snapshot is never updated once written.
type PortfolioSnapshot struct {
	ID            string             `json:"id" db:"id"`
	UserID        int64              `json:"user_id" db:"user_id"`
	Date          time.Time          `json:"date" db:"snapshot_date"`
	AvailableCash decimal.Decimal    `json:"available_cash" db:"available_cash"`
	Positions     []SnapshotPosition `json:"positions" db:"positions"`
}
