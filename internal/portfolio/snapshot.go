package portfolio

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/metrics"
	"github.com/jbmild/cocos/internal/model"
	"github.com/jbmild/cocos/internal/store"
)

// SnapshotReplay computes the portfolio incrementally. Each call rebuilds
// yesterday's end-of-day state — from the newest snapshot dated before
// today plus the orders since, or from scratch when no snapshot exists —
// then folds today's orders on top for the live view. When yesterday has
// no snapshot yet and anything changed since the last one, yesterday's
// state is persisted, so every finished day is snapshotted exactly once
// and future calls replay only the orders since yesterday. The live
// (today) state is never snapshotted: today is not over.
type SnapshotReplay struct {
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

func (e *SnapshotReplay) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *SnapshotReplay) GetPortfolio(ctx context.Context, st store.Store, userID int64) (*model.Portfolio, error) {
	metrics.ValuationsTotal.WithLabelValues(StrategySnapshot).Inc()

	today := startOfDay(e.now())
	yesterday := today.AddDate(0, 0, -1)

	snap, err := st.GetLatestSnapshotBefore(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	var cash decimal.Decimal
	var positions model.PositionMap
	var replayedSinceSnapshot bool

	if snap != nil {
		cash = snap.AvailableCash
		positions, err = rehydratePositions(ctx, st, snap)
		if err != nil {
			return nil, err
		}

		// Orders dated strictly after the snapshot's day, up to yesterday
		// inclusive, bring the snapshot forward to yesterday's close.
		sinceSnapshot, err := st.GetFilledOrdersBetween(ctx, userID, snap.Date.AddDate(0, 0, 1), today)
		if err != nil {
			return nil, err
		}
		replayedSinceSnapshot = len(sinceSnapshot) > 0

		cash, positions, err = foldOrders(cash, positions, sinceSnapshot)
		if err != nil {
			return nil, err
		}
	} else {
		// First valuation for this user: replay the whole history up to
		// yesterday's close. Counts as a change so the first snapshot gets
		// written even for an empty history.
		history, err := st.GetFilledOrdersBefore(ctx, userID, today)
		if err != nil {
			return nil, err
		}
		replayedSinceSnapshot = true

		cash, positions, err = foldOrders(decimal.Zero, model.PositionMap{}, history)
		if err != nil {
			return nil, err
		}
	}

	// Freeze yesterday's close before folding today's activity.
	yesterdayCash := cash
	yesterdayPositions := positions.Clone()

	todayOrders, err := st.GetFilledOrdersFrom(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	cash, positions, err = foldOrders(cash, positions, todayOrders)
	if err != nil {
		return nil, err
	}

	if replayedSinceSnapshot {
		if err := e.saveYesterday(ctx, st, userID, yesterday, yesterdayCash, yesterdayPositions); err != nil {
			return nil, err
		}
	}

	return valuePortfolio(ctx, st, userID, cash, positions)
}

// saveYesterday persists yesterday's end-of-day state unless a snapshot for
// that date already exists.
func (e *SnapshotReplay) saveYesterday(ctx context.Context, st store.Store, userID int64, date time.Time, cash decimal.Decimal, positions model.PositionMap) error {
	existing, err := st.GetSnapshot(ctx, userID, date)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	snap := &model.PortfolioSnapshot{
		ID:            uuid.New().String(),
		UserID:        userID,
		Date:          date,
		AvailableCash: cash,
		Positions:     serializePositions(positions),
	}
	if err := st.SaveSnapshot(ctx, snap); err != nil {
		return err
	}

	metrics.SnapshotsWritten.Inc()
	slog.Info("portfolio snapshot written",
		"user", userID,
		"date", date.Format("2006-01-02"),
		"cash", cash.String(),
		"positions", len(snap.Positions),
	)
	return nil
}

// serializePositions flattens the position map to instrument ID plus
// quantity and cost basis, in deterministic order.
func serializePositions(positions model.PositionMap) []model.SnapshotPosition {
	out := make([]model.SnapshotPosition, 0, len(positions))
	for id, pos := range positions {
		out = append(out, model.SnapshotPosition{
			InstrumentID: id,
			Quantity:     pos.Quantity,
			TotalCost:    pos.TotalCost,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// rehydratePositions rebuilds a position map from a snapshot, re-resolving
// each instrument record by ID. Positions whose instrument has disappeared
// from the directory are dropped.
func rehydratePositions(ctx context.Context, st store.Store, snap *model.PortfolioSnapshot) (model.PositionMap, error) {
	positions := make(model.PositionMap, len(snap.Positions))
	if len(snap.Positions) == 0 {
		return positions, nil
	}

	ids := make([]int64, 0, len(snap.Positions))
	for _, sp := range snap.Positions {
		ids = append(ids, sp.InstrumentID)
	}
	instruments, err := st.GetInstruments(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, sp := range snap.Positions {
		inst, ok := instruments[sp.InstrumentID]
		if !ok {
			continue
		}
		positions[sp.InstrumentID] = model.Position{
			Quantity:   sp.Quantity,
			TotalCost:  sp.TotalCost,
			Instrument: inst,
		}
	}
	return positions, nil
}
