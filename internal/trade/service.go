// Package trade composes the order engine: it orchestrates order creation
// and cancellation under a per-user lock inside one transaction, and
// exposes the HTTP surface for orders, portfolios and instrument lookup.
package trade

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/metrics"
	"github.com/jbmild/cocos/internal/model"
	"github.com/jbmild/cocos/internal/order"
	"github.com/jbmild/cocos/internal/portfolio"
	"github.com/jbmild/cocos/internal/store"
)

// Service orchestrates the order lifecycle. Concurrency control is the
// store's per-user transactional lock, not an in-process mutex, so it holds
// across every instance sharing the store.
type Service struct {
	store  store.Store
	engine portfolio.Engine
	hub    *WSHub // optional, nil disables broadcasts
	now    func() time.Time
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, engine portfolio.Engine, hub *WSHub) *Service {
	return &Service{
		store:  st,
		engine: engine,
		hub:    hub,
		now:    time.Now,
	}
}

// CreateOrder runs the whole creation pipeline atomically: lock the user,
// resolve instrument and price, compute the current portfolio, build and
// evaluate the candidate order, persist it. Any failure rolls the entire
// attempt back; an infeasible order is not a failure — it is persisted
// with status REJECTED.
func (s *Service) CreateOrder(ctx context.Context, in order.CreateOrderInput) (*model.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var created *model.Order

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// One order per user at a time; released at transaction end.
		if err := tx.LockUser(ctx, in.UserID); err != nil {
			return err
		}

		inst, err := tx.GetInstrument(ctx, in.InstrumentID)
		if err != nil {
			return err
		}

		var marketPrice *decimal.Decimal
		if in.Type == model.TypeMarket && !in.Side.IsCashSide() {
			pp, err := tx.GetLatestPrice(ctx, in.InstrumentID)
			if err != nil {
				return err
			}
			if pp == nil {
				return apperr.NotFoundf("market price not available for instrument %d", in.InstrumentID)
			}
			marketPrice = &pp.Close
		}

		pf, err := s.engine.GetPortfolio(ctx, tx, in.UserID)
		if err != nil {
			return err
		}

		builder, err := order.BuilderFor(in.Type)
		if err != nil {
			return err
		}
		if err := builder.ValidateInput(in); err != nil {
			return err
		}
		o, err := builder.BuildOrder(in, inst, marketPrice)
		if err != nil {
			return err
		}
		o.ID = uuid.New().String()
		o.Datetime = s.now().UTC()

		proc, err := order.ProcessorFor(o)
		if err != nil {
			return err
		}
		o.Status = proc.DetermineStatus(proc.ValidateOrder(pf.AvailableCash, pf.Positions))

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(created.Side), string(created.Status)).Inc()
	metrics.OrderLatency.WithLabelValues(string(created.Side)).Observe(time.Since(start).Seconds())

	slog.Info("order created",
		"id", created.ID,
		"user", created.UserID,
		"instrument", created.InstrumentID,
		"side", created.Side,
		"type", created.Type,
		"size", created.Size,
		"price", created.Price.String(),
		"status", created.Status,
	)

	if s.hub != nil {
		s.hub.Broadcast(orderEvent("order_created", created))
	}
	return created, nil
}

// CancelOrder transitions a NEW order to CANCELLED, atomically and under
// the owner's lock. Orders in any terminal status cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var cancelled *model.Order

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		if o.Status != model.StatusNew {
			return apperr.Validationf(
				"cannot cancel order with status %s; only orders with status NEW can be cancelled", o.Status)
		}

		if err := tx.LockUser(ctx, o.UserID); err != nil {
			return err
		}

		if err := tx.UpdateOrderStatus(ctx, o.ID, model.StatusCancelled); err != nil {
			return err
		}
		o.Status = model.StatusCancelled
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CancellationsTotal.Inc()
	slog.Info("order cancelled", "id", cancelled.ID, "user", cancelled.UserID)

	if s.hub != nil {
		s.hub.Broadcast(orderEvent("order_cancelled", cancelled))
	}
	return cancelled, nil
}

// Portfolio computes the live portfolio view for a user.
func (s *Service) Portfolio(ctx context.Context, userID int64) (*model.Portfolio, error) {
	return s.engine.GetPortfolio(ctx, s.store, userID)
}

func orderEvent(eventType string, o *model.Order) WSMessage {
	ticker := ""
	if o.Instrument != nil {
		ticker = o.Instrument.Ticker
	}
	return WSMessage{
		Type:    eventType,
		OrderID: o.ID,
		UserID:  o.UserID,
		Ticker:  ticker,
		Side:    string(o.Side),
		Status:  string(o.Status),
		Size:    o.Size,
		Price:   o.Price.String(),
	}
}
