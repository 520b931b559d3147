// Package order implements order construction and evaluation: type-keyed
// builders that normalize raw input into a candidate order, and side-keyed
// processors that compute each order's economic effect and decide whether
// it is accepted.
package order

import (
	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/model"
)

// CreateOrderInput is the raw order request as submitted by a caller.
// Exactly one of Size or Amount carries the order's magnitude; Price is
// only meaningful for LIMIT orders.
type CreateOrderInput struct {
	UserID       int64            `json:"user_id"`
	InstrumentID int64            `json:"instrument_id"`
	Side         model.OrderSide  `json:"side"`
	Type         model.OrderType  `json:"type"`
	Size         *int64           `json:"size,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

// Validate enforces the request schema: known side and type, positive
// magnitudes, size-or-amount, price required for LIMIT, amount restricted
// to MARKET. Type-specific shape beyond this is the builder's job.
func (in CreateOrderInput) Validate() error {
	if in.UserID <= 0 {
		return apperr.Validationf("user_id must be a positive integer")
	}
	if in.InstrumentID <= 0 {
		return apperr.Validationf("instrument_id must be a positive integer")
	}
	if !in.Side.Valid() {
		return apperr.Validationf("side must be one of: BUY, SELL, CASH_IN, CASH_OUT")
	}
	if !in.Type.Valid() {
		return apperr.Validationf("type must be one of: MARKET, LIMIT")
	}
	if in.Size != nil && *in.Size <= 0 {
		return apperr.Validationf("size must be positive")
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return apperr.Validationf("amount must be positive")
	}
	if in.Price != nil && !in.Price.IsPositive() {
		return apperr.Validationf("price must be positive")
	}
	if in.Size == nil && in.Amount == nil {
		return apperr.Validationf("either size or amount must be provided")
	}
	if in.Amount != nil && in.Type != model.TypeMarket {
		return apperr.Validationf("amount can only be used with MARKET orders")
	}
	if in.Type == model.TypeLimit && in.Price == nil {
		return apperr.Validationf("price is required for LIMIT orders")
	}
	return nil
}
