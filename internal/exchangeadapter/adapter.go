// Package exchangeadapter is the narrow port the Executor and Monitor use to
// talk to the exchange. A real implementation wraps the Binance USDⓈ-M
// futures SDK already used elsewhere in this codebase; a dry-run
// implementation returns synthetic fills so the core can run without live
// credentials.
package exchangeadapter

import (
	"context"

	"github.com/shopspring/decimal"

	"tradecore/internal/decimalx"
)

// OrderSide mirrors the exchange BUY/SELL distinction.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus mirrors the exchange-reported order lifecycle.
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// Open reports whether the exchange still considers the order live.
func (s OrderStatus) Open() bool {
	return s == OrderNew || s == OrderPartiallyFilled
}

// OrderResult is the subset of exchange order fields the core cares about.
type OrderResult struct {
	OrderID         int64
	ClientOrderID   string
	Status          OrderStatus
	ExecutedQty     decimal.Decimal
	AvgPrice        decimal.Decimal
}

// Position is the exchange-reported open position for a symbol.
type Position struct {
	Symbol       string
	PositionAmt  decimal.Decimal // signed: positive long, negative short
	EntryPrice   decimal.Decimal
}

// Open reports whether the exchange reports a nonzero position.
func (p Position) Open() bool {
	return !p.PositionAmt.IsZero()
}

// Adapter is the full exchange surface named in the external-interfaces
// section: exchange info, balance, position risk, leverage, order CRUD.
type Adapter interface {
	SymbolFilters(ctx context.Context, symbol string) (decimalx.SymbolFilters, error)
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PositionRisk(ctx context.Context, symbol string) (Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	PlaceLimitOrder(ctx context.Context, symbol string, side OrderSide, qty, price decimal.Decimal, reduceOnly bool, clientOrderID string) (OrderResult, error)
	PlaceStopMarketOrder(ctx context.Context, symbol string, side OrderSide, qty, stopPrice decimal.Decimal, clientOrderID string) (OrderResult, error)
	PlaceTakeProfitLimitOrder(ctx context.Context, symbol string, side OrderSide, qty, price, stopPrice decimal.Decimal, clientOrderID string) (OrderResult, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal, reduceOnly bool, clientOrderID string) (OrderResult, error)

	QueryOrder(ctx context.Context, symbol string, orderID int64) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	ListOpenOrders(ctx context.Context, symbol string) ([]OrderResult, error)
}
