package order

import (
	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/model"
)

// Builder validates type-specific input shape and produces a normalized
// candidate order with resolved size and price. Builders are pure functions
// of (input, instrument, optional market price): they never consult the
// portfolio or decide feasibility — that is the Processor's job.
type Builder interface {
	ValidateInput(in CreateOrderInput) error
	BuildOrder(in CreateOrderInput, inst *model.Instrument, marketPrice *decimal.Decimal) (*model.Order, error)
}

// BuilderFor returns the builder for the given order type.
func BuilderFor(t model.OrderType) (Builder, error) {
	switch t {
	case model.TypeMarket:
		return marketBuilder{}, nil
	case model.TypeLimit:
		return limitBuilder{}, nil
	default:
		return nil, apperr.Validationf("unknown order type: %s", t)
	}
}

// marketBuilder builds MARKET orders. The order executes at the supplied
// market price (fixed at 1 for cash sides), and an Amount, when given, is
// converted to a whole-unit size at that price.
type marketBuilder struct{}

func (marketBuilder) ValidateInput(in CreateOrderInput) error {
	if in.Amount != nil && in.Type != model.TypeMarket {
		return apperr.Validationf("amount can only be used with MARKET orders")
	}
	if in.Size == nil && in.Amount == nil {
		return apperr.Validationf("either size or amount must be provided")
	}
	return nil
}

func (marketBuilder) BuildOrder(in CreateOrderInput, inst *model.Instrument, marketPrice *decimal.Decimal) (*model.Order, error) {
	isCash := in.Side.IsCashSide()

	var price decimal.Decimal
	if isCash {
		price = decimal.NewFromInt(1)
	} else {
		if marketPrice == nil {
			return nil, apperr.Validationf("market price is required for MARKET orders")
		}
		// A zero close would make the amount division panic.
		if !marketPrice.IsPositive() {
			return nil, apperr.Validationf("market price must be positive")
		}
		price = *marketPrice
	}

	var size int64
	if in.Amount != nil {
		if isCash {
			// The amount is the cash size itself, floored to a whole unit.
			size = in.Amount.Floor().IntPart()
		} else {
			size = in.Amount.Div(price).Floor().IntPart()
		}
		if size <= 0 {
			return nil, apperr.Validationf("amount is too small to buy at least one unit")
		}
	} else {
		size = *in.Size
	}

	return &model.Order{
		UserID:       in.UserID,
		InstrumentID: in.InstrumentID,
		Side:         in.Side,
		Type:         in.Type,
		Size:         size,
		Price:        price,
		Instrument:   inst,
	}, nil
}

// limitBuilder builds LIMIT orders. Both size and limit price must be
// explicit; the market price is never consulted.
type limitBuilder struct{}

func (limitBuilder) ValidateInput(in CreateOrderInput) error {
	if in.Price == nil {
		return apperr.Validationf("price is required for LIMIT orders")
	}
	if in.Size == nil {
		return apperr.Validationf("size is required for LIMIT orders")
	}
	return nil
}

func (limitBuilder) BuildOrder(in CreateOrderInput, inst *model.Instrument, _ *decimal.Decimal) (*model.Order, error) {
	return &model.Order{
		UserID:       in.UserID,
		InstrumentID: in.InstrumentID,
		Side:         in.Side,
		Type:         in.Type,
		Size:         *in.Size,
		Price:        *in.Price,
		Instrument:   inst,
	}, nil
}
