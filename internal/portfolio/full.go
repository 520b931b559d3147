package portfolio

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/metrics"
	"github.com/jbmild/cocos/internal/model"
	"github.com/jbmild/cocos/internal/store"
)

// FullReplay computes the portfolio by folding every FILLED order for the
// user, oldest first, starting from zero cash and no positions. O(all
// history) per call, but it has no auxiliary state to maintain.
type FullReplay struct{}

func (FullReplay) GetPortfolio(ctx context.Context, st store.Store, userID int64) (*model.Portfolio, error) {
	metrics.ValuationsTotal.WithLabelValues(StrategyFull).Inc()

	orders, err := st.GetFilledOrders(ctx, userID)
	if err != nil {
		return nil, err
	}

	cash, positions, err := foldOrders(decimal.Zero, model.PositionMap{}, orders)
	if err != nil {
		return nil, err
	}

	return valuePortfolio(ctx, st, userID, cash, positions)
}
