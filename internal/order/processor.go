package order

import (
	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/model"
)

// Processor computes an order's economic effect and decides its status.
//
// ProcessCash and ProcessPositions are the reducer steps of the portfolio
// fold: each takes the current state and returns the next one. BUY/SELL
// touch cash only for non-cash instruments; CASH_IN/CASH_OUT touch cash
// only for the cash instrument itself, so an order routed to the wrong
// side is a no-op rather than a corruption.
type Processor interface {
	ProcessCash(cash decimal.Decimal) decimal.Decimal
	ProcessPositions(positions model.PositionMap) model.PositionMap
	ValidateOrder(availableCash decimal.Decimal, positions model.PositionMap) bool
	DetermineStatus(valid bool) model.OrderStatus
}

// ProcessorFor returns the processor for the order's side.
func ProcessorFor(o *model.Order) (Processor, error) {
	switch o.Side {
	case model.SideBuy:
		return buyProcessor{order: o}, nil
	case model.SideSell:
		return sellProcessor{order: o}, nil
	case model.SideCashIn:
		return cashInProcessor{order: o}, nil
	case model.SideCashOut:
		return cashOutProcessor{order: o}, nil
	default:
		return nil, apperr.Validationf("unknown order side: %s", o.Side)
	}
}

// securityStatus is the status rule shared by BUY and SELL: infeasible
// orders are REJECTED, feasible MARKET orders fill immediately, feasible
// LIMIT orders rest as NEW awaiting an out-of-scope matching sweep.
func securityStatus(o *model.Order, valid bool) model.OrderStatus {
	if !valid {
		return model.StatusRejected
	}
	if o.Type == model.TypeLimit {
		return model.StatusNew
	}
	return model.StatusFilled
}

// cashStatus is the status rule for CASH_IN/CASH_OUT: always MARKET-typed,
// so a feasible order always fills immediately.
func cashStatus(valid bool) model.OrderStatus {
	if !valid {
		return model.StatusRejected
	}
	return model.StatusFilled
}

// --- BUY ---

type buyProcessor struct {
	order *model.Order
}

func (p buyProcessor) ProcessCash(cash decimal.Decimal) decimal.Decimal {
	if p.order.Instrument.IsCash() {
		return cash
	}
	return cash.Sub(p.order.Value())
}

func (p buyProcessor) ProcessPositions(positions model.PositionMap) model.PositionMap {
	if p.order.Instrument == nil {
		return positions
	}
	pos := positions[p.order.InstrumentID]
	pos.Quantity += p.order.Size
	pos.TotalCost = pos.TotalCost.Add(p.order.Value())
	pos.Instrument = p.order.Instrument
	positions[p.order.InstrumentID] = pos
	return positions
}

func (p buyProcessor) ValidateOrder(availableCash decimal.Decimal, _ model.PositionMap) bool {
	inst := p.order.Instrument
	if inst == nil || inst.IsCash() {
		return false
	}
	return availableCash.GreaterThanOrEqual(p.order.Value())
}

func (p buyProcessor) DetermineStatus(valid bool) model.OrderStatus {
	return securityStatus(p.order, valid)
}

// --- SELL ---

type sellProcessor struct {
	order *model.Order
}

func (p sellProcessor) ProcessCash(cash decimal.Decimal) decimal.Decimal {
	if p.order.Instrument.IsCash() {
		return cash
	}
	return cash.Add(p.order.Value())
}

// ProcessPositions reduces the quantity and rescales TotalCost so the
// average cost basis of the remaining units is unchanged.
func (p sellProcessor) ProcessPositions(positions model.PositionMap) model.PositionMap {
	if p.order.Instrument == nil {
		return positions
	}
	pos, ok := positions[p.order.InstrumentID]
	if !ok {
		return positions
	}
	avgCost := pos.AvgCost()
	pos.Quantity -= p.order.Size
	pos.TotalCost = decimal.NewFromInt(pos.Quantity).Mul(avgCost)
	positions[p.order.InstrumentID] = pos
	return positions
}

func (p sellProcessor) ValidateOrder(_ decimal.Decimal, positions model.PositionMap) bool {
	inst := p.order.Instrument
	if inst == nil || inst.IsCash() {
		return false
	}
	pos, ok := positions[p.order.InstrumentID]
	return ok && pos.Quantity >= p.order.Size
}

func (p sellProcessor) DetermineStatus(valid bool) model.OrderStatus {
	return securityStatus(p.order, valid)
}

// --- CASH_IN ---

type cashInProcessor struct {
	order *model.Order
}

func (p cashInProcessor) ProcessCash(cash decimal.Decimal) decimal.Decimal {
	if !p.order.Instrument.IsCash() {
		return cash
	}
	// size is already the currency amount; price is fixed at 1.
	return cash.Add(decimal.NewFromInt(p.order.Size))
}

func (p cashInProcessor) ProcessPositions(positions model.PositionMap) model.PositionMap {
	return positions
}

func (p cashInProcessor) ValidateOrder(_ decimal.Decimal, _ model.PositionMap) bool {
	return p.order.Instrument.IsCash()
}

func (p cashInProcessor) DetermineStatus(valid bool) model.OrderStatus {
	return cashStatus(valid)
}

// --- CASH_OUT ---

type cashOutProcessor struct {
	order *model.Order
}

func (p cashOutProcessor) ProcessCash(cash decimal.Decimal) decimal.Decimal {
	if !p.order.Instrument.IsCash() {
		return cash
	}
	return cash.Sub(decimal.NewFromInt(p.order.Size))
}

func (p cashOutProcessor) ProcessPositions(positions model.PositionMap) model.PositionMap {
	return positions
}

func (p cashOutProcessor) ValidateOrder(availableCash decimal.Decimal, _ model.PositionMap) bool {
	if !p.order.Instrument.IsCash() {
		return false
	}
	return availableCash.GreaterThanOrEqual(decimal.NewFromInt(p.order.Size))
}

func (p cashOutProcessor) DetermineStatus(valid bool) model.OrderStatus {
	return cashStatus(valid)
}
