// Package portfolio reconstructs a user's cash balance and security
// holdings from the append-only order history.
//
// Two interchangeable strategies implement the same contract: FullReplay
// folds every FILLED order from zero on each call, and SnapshotReplay
// resumes from a persisted end-of-day snapshot and folds only the orders
// since. The strategy is a deployment-time choice, not a per-request one.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/metrics"
	"github.com/jbmild/cocos/internal/model"
	"github.com/jbmild/cocos/internal/order"
	"github.com/jbmild/cocos/internal/store"
)

// Engine computes a user's portfolio. The store is passed per call so the
// same strategy can run against either the pool or a transactional view.
type Engine interface {
	GetPortfolio(ctx context.Context, st store.Store, userID int64) (*model.Portfolio, error)
}

// Strategy names accepted by NewEngine.
const (
	StrategyFull     = "full"
	StrategySnapshot = "snapshot"
)

// NewEngine returns the strategy selected by the deployment configuration.
func NewEngine(strategy string) (Engine, error) {
	switch strategy {
	case StrategyFull:
		return FullReplay{}, nil
	case StrategySnapshot:
		return &SnapshotReplay{}, nil
	default:
		return nil, fmt.Errorf("unknown portfolio strategy %q (want %q or %q)",
			strategy, StrategyFull, StrategySnapshot)
	}
}

// foldOrders applies each order's cash and position effects in sequence.
// The fold starts from the given state and returns the resulting one.
// Orders on the cash instrument never enter the position map; their whole
// effect is on cash.
func foldOrders(cash decimal.Decimal, positions model.PositionMap, orders []model.Order) (decimal.Decimal, model.PositionMap, error) {
	for i := range orders {
		o := &orders[i]
		proc, err := order.ProcessorFor(o)
		if err != nil {
			return cash, positions, err
		}
		cash = proc.ProcessCash(cash)
		if !o.Instrument.IsCash() {
			positions = proc.ProcessPositions(positions)
		}
	}
	return cash, positions, nil
}

// checkConsistency enforces the account invariant: available cash and every
// position quantity are non-negative. A violation means an order that
// should have been rejected was accepted, and is surfaced as a distinct
// inconsistent-state condition rather than a validation failure.
func checkConsistency(cash decimal.Decimal, positions model.PositionMap) error {
	if cash.IsNegative() {
		metrics.InconsistentStates.Inc()
		return apperr.Inconsistentf("negative cash balance detected (%s)", cash.StringFixed(2))
	}

	var negative []string
	for _, pos := range positions {
		if pos.Quantity < 0 {
			ticker := "unknown"
			if pos.Instrument != nil {
				ticker = pos.Instrument.Ticker
			}
			negative = append(negative, ticker)
		}
	}
	if len(negative) > 0 {
		sort.Strings(negative)
		metrics.InconsistentStates.Inc()
		return apperr.Inconsistentf("negative positions detected in: %s", strings.Join(negative, ", "))
	}
	return nil
}

// valuePortfolio turns a consistent fold result into the external portfolio
// view: holdings priced at the latest close with total and daily returns,
// sorted by ticker.
func valuePortfolio(ctx context.Context, st store.Store, userID int64, cash decimal.Decimal, positions model.PositionMap) (*model.Portfolio, error) {
	if err := checkConsistency(cash, positions); err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	var holdings []model.Holding

	for id, pos := range positions {
		if pos.Quantity <= 0 {
			continue
		}

		pp, err := st.GetLatestPrice(ctx, id)
		if err != nil {
			return nil, err
		}

		// Missing market data values the holding at zero; only order
		// creation treats an absent price as an error.
		var close, prev decimal.Decimal
		if pp != nil {
			close = pp.Close
			prev = pp.PreviousClose
		}

		qty := decimal.NewFromInt(pos.Quantity)
		avgCost := pos.AvgCost()

		totalReturn := decimal.Zero
		if avgCost.IsPositive() {
			totalReturn = close.Sub(avgCost).Div(avgCost).Mul(hundred).Round(2)
		}
		dailyReturn := decimal.Zero
		if prev.IsPositive() {
			dailyReturn = close.Sub(prev).Div(prev).Mul(hundred).Round(2)
		}

		var ticker, name string
		if pos.Instrument != nil {
			ticker = pos.Instrument.Ticker
			name = pos.Instrument.Name
		}

		holdings = append(holdings, model.Holding{
			InstrumentID: id,
			Ticker:       ticker,
			Name:         name,
			Quantity:     pos.Quantity,
			MarketValue:  close.Mul(qty),
			TotalReturn:  totalReturn,
			DailyReturn:  dailyReturn,
		})
	}

	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })

	total := cash
	for _, h := range holdings {
		total = total.Add(h.MarketValue)
	}

	return &model.Portfolio{
		UserID:        userID,
		TotalValue:    total,
		AvailableCash: cash,
		Holdings:      holdings,
		Positions:     positions,
	}, nil
}

// startOfDay truncates a time to midnight UTC. Calendar days for snapshot
// bookkeeping are UTC days.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
