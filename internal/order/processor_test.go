package order

import (
	"errors"
	"testing"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/model"
)

func buyOrder(size int64, price float64) *model.Order {
	return &model.Order{
		UserID: 1, InstrumentID: stock.ID,
		Side: model.SideBuy, Type: model.TypeMarket,
		Size: size, Price: d(price),
		Instrument: stock,
	}
}

func TestProcessorFor_UnknownSide(t *testing.T) {
	_, err := ProcessorFor(&model.Order{Side: "SHORT"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuyProcessor(t *testing.T) {
	o := buyOrder(10, 100.50)
	p, err := ProcessorFor(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cash := p.ProcessCash(d(10000))
	if !cash.Equal(d(8995)) {
		t.Errorf("expected cash 8995 after buying 10 @ 100.50, got %s", cash)
	}

	positions := p.ProcessPositions(model.PositionMap{})
	pos := positions[stock.ID]
	if pos.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", pos.Quantity)
	}
	if !pos.TotalCost.Equal(d(1005)) {
		t.Errorf("expected total cost 1005, got %s", pos.TotalCost)
	}

	// Second buy accumulates into the same position.
	positions = p.ProcessPositions(positions)
	pos = positions[stock.ID]
	if pos.Quantity != 20 || !pos.TotalCost.Equal(d(2010)) {
		t.Errorf("expected quantity 20 / cost 2010, got %d / %s", pos.Quantity, pos.TotalCost)
	}

	if !p.ValidateOrder(d(1005), nil) {
		t.Error("expected order feasible with exactly enough cash")
	}
	if p.ValidateOrder(d(1004.99), nil) {
		t.Error("expected order infeasible with insufficient cash")
	}
}

func TestBuyProcessor_CashInstrumentRejected(t *testing.T) {
	o := buyOrder(10, 1)
	o.InstrumentID = cash.ID
	o.Instrument = cash
	p, _ := ProcessorFor(o)

	if got := p.ProcessCash(d(500)); !got.Equal(d(500)) {
		t.Errorf("expected cash untouched for cash-instrument BUY, got %s", got)
	}
	if p.ValidateOrder(d(500), nil) {
		t.Error("expected BUY of the cash instrument to be infeasible")
	}
}

func TestBuyProcessor_Status(t *testing.T) {
	market := buyOrder(10, 100)
	p, _ := ProcessorFor(market)
	if got := p.DetermineStatus(true); got != model.StatusFilled {
		t.Errorf("expected feasible MARKET order FILLED, got %s", got)
	}
	if got := p.DetermineStatus(false); got != model.StatusRejected {
		t.Errorf("expected infeasible order REJECTED, got %s", got)
	}

	limit := buyOrder(10, 100)
	limit.Type = model.TypeLimit
	p, _ = ProcessorFor(limit)
	if got := p.DetermineStatus(true); got != model.StatusNew {
		t.Errorf("expected feasible LIMIT order NEW, got %s", got)
	}
}

func TestSellProcessor_PreservesAvgCost(t *testing.T) {
	o := &model.Order{
		UserID: 1, InstrumentID: stock.ID,
		Side: model.SideSell, Type: model.TypeMarket,
		Size: 3, Price: d(120),
		Instrument: stock,
	}
	p, _ := ProcessorFor(o)

	cash := p.ProcessCash(d(1000))
	if !cash.Equal(d(1360)) {
		t.Errorf("expected cash 1360 after selling 3 @ 120, got %s", cash)
	}

	positions := model.PositionMap{
		stock.ID: {Quantity: 10, TotalCost: d(1000), Instrument: stock},
	}
	positions = p.ProcessPositions(positions)
	pos := positions[stock.ID]
	if pos.Quantity != 7 {
		t.Errorf("expected quantity 7, got %d", pos.Quantity)
	}
	if !pos.TotalCost.Equal(d(700)) {
		t.Errorf("expected total cost rescaled to 700 at avg cost 100, got %s", pos.TotalCost)
	}
}

func TestSellProcessor_Validate(t *testing.T) {
	o := &model.Order{
		UserID: 1, InstrumentID: stock.ID,
		Side: model.SideSell, Type: model.TypeMarket,
		Size: 10, Price: d(120),
		Instrument: stock,
	}
	p, _ := ProcessorFor(o)

	if p.ValidateOrder(d(0), model.PositionMap{}) {
		t.Error("expected sell without a position to be infeasible")
	}

	short := model.PositionMap{stock.ID: {Quantity: 9, TotalCost: d(900), Instrument: stock}}
	if p.ValidateOrder(d(0), short) {
		t.Error("expected sell exceeding held quantity to be infeasible")
	}

	exact := model.PositionMap{stock.ID: {Quantity: 10, TotalCost: d(1000), Instrument: stock}}
	if !p.ValidateOrder(d(0), exact) {
		t.Error("expected sell of exactly the held quantity to be feasible")
	}

	// Missing position leaves the map untouched.
	got := p.ProcessPositions(model.PositionMap{})
	if len(got) != 0 {
		t.Errorf("expected no position created by a sell, got %d entries", len(got))
	}
}

func TestCashInProcessor(t *testing.T) {
	o := &model.Order{
		UserID: 1, InstrumentID: cash.ID,
		Side: model.SideCashIn, Type: model.TypeMarket,
		Size: 10000, Price: d(1),
		Instrument: cash,
	}
	p, _ := ProcessorFor(o)

	if got := p.ProcessCash(d(0)); !got.Equal(d(10000)) {
		t.Errorf("expected cash 10000, got %s", got)
	}
	if !p.ValidateOrder(d(0), nil) {
		t.Error("expected CASH_IN on the cash instrument to be feasible")
	}
	if got := p.DetermineStatus(true); got != model.StatusFilled {
		t.Errorf("expected FILLED, got %s", got)
	}

	// CASH_IN targeting a security is a guarded no-op.
	wrong := *o
	wrong.InstrumentID = stock.ID
	wrong.Instrument = stock
	p, _ = ProcessorFor(&wrong)
	if got := p.ProcessCash(d(500)); !got.Equal(d(500)) {
		t.Errorf("expected cash untouched, got %s", got)
	}
	if p.ValidateOrder(d(500), nil) {
		t.Error("expected CASH_IN on a security to be infeasible")
	}
}

func TestCashOutProcessor(t *testing.T) {
	o := &model.Order{
		UserID: 1, InstrumentID: cash.ID,
		Side: model.SideCashOut, Type: model.TypeMarket,
		Size: 600, Price: d(1),
		Instrument: cash,
	}
	p, _ := ProcessorFor(o)

	if got := p.ProcessCash(d(1000)); !got.Equal(d(400)) {
		t.Errorf("expected cash 400, got %s", got)
	}
	if !p.ValidateOrder(d(600), nil) {
		t.Error("expected withdrawal of exactly the balance to be feasible")
	}
	if p.ValidateOrder(d(599.99), nil) {
		t.Error("expected withdrawal beyond the balance to be infeasible")
	}
	if got := p.DetermineStatus(false); got != model.StatusRejected {
		t.Errorf("expected REJECTED, got %s", got)
	}
}

func TestProcessors_NilInstrumentInfeasible(t *testing.T) {
	for _, side := range []model.OrderSide{model.SideBuy, model.SideSell, model.SideCashIn, model.SideCashOut} {
		o := &model.Order{UserID: 1, InstrumentID: 99, Side: side, Type: model.TypeMarket, Size: 1, Price: d(1)}
		p, err := ProcessorFor(o)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", side, err)
		}
		if p.ValidateOrder(d(1000), model.PositionMap{}) {
			t.Errorf("%s: expected infeasible without instrument", side)
		}
	}
}
