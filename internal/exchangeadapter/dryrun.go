package exchangeadapter

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"tradecore/internal/decimalx"
)

// DryRunAdapter satisfies Adapter without touching the exchange: every
// order is accepted and logged. Limit and market orders are reported filled
// immediately at their price; stop-market and take-profit orders stay NEW
// until cancelled.
type DryRunAdapter struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[int64]OrderResult
	filters  decimalx.SymbolFilters
	balance  decimal.Decimal
	mark     decimal.Decimal
}

// NewDryRunAdapter returns a no-op adapter seeded with a synthetic balance,
// mark price, and symbol filters (used when none are configured).
func NewDryRunAdapter(balance, mark decimal.Decimal, filters decimalx.SymbolFilters) *DryRunAdapter {
	return &DryRunAdapter{
		orders:  make(map[int64]OrderResult),
		filters: filters,
		balance: balance,
		mark:    mark,
	}
}

func (a *DryRunAdapter) newID() int64 {
	return atomic.AddInt64(&a.nextID, 1)
}

func (a *DryRunAdapter) SymbolFilters(_ context.Context, _ string) (decimalx.SymbolFilters, error) {
	return a.filters, nil
}

func (a *DryRunAdapter) AvailableBalance(_ context.Context) (decimal.Decimal, error) {
	return a.balance, nil
}

func (a *DryRunAdapter) MarkPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return a.mark, nil
}

func (a *DryRunAdapter) PositionRisk(_ context.Context, symbol string) (Position, error) {
	return Position{Symbol: symbol}, nil
}

func (a *DryRunAdapter) SetLeverage(_ context.Context, symbol string, leverage int) error {
	log.Printf("[dryrun] set leverage %s x%d", symbol, leverage)
	return nil
}

func (a *DryRunAdapter) place(symbol, clientOrderID string, qty, price decimal.Decimal, status OrderStatus) OrderResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := OrderResult{
		OrderID:       a.newID(),
		ClientOrderID: clientOrderID,
		Status:        status,
		ExecutedQty:   qty,
		AvgPrice:      price,
	}
	a.orders[res.OrderID] = res
	log.Printf("[dryrun] %s order symbol=%s qty=%s price=%s id=%d", clientOrderID, symbol, qty, price, res.OrderID)
	return res
}

func (a *DryRunAdapter) PlaceLimitOrder(_ context.Context, symbol string, _ OrderSide, qty, price decimal.Decimal, _ bool, clientOrderID string) (OrderResult, error) {
	return a.place(symbol, clientOrderID, qty, price, OrderFilled), nil
}

func (a *DryRunAdapter) PlaceStopMarketOrder(_ context.Context, symbol string, _ OrderSide, qty, stopPrice decimal.Decimal, clientOrderID string) (OrderResult, error) {
	return a.place(symbol, clientOrderID, qty, stopPrice, OrderNew), nil
}

func (a *DryRunAdapter) PlaceTakeProfitLimitOrder(_ context.Context, symbol string, _ OrderSide, qty, price, _ decimal.Decimal, clientOrderID string) (OrderResult, error) {
	return a.place(symbol, clientOrderID, qty, price, OrderNew), nil
}

func (a *DryRunAdapter) PlaceMarketOrder(_ context.Context, symbol string, _ OrderSide, qty decimal.Decimal, _ bool, clientOrderID string) (OrderResult, error) {
	return a.place(symbol, clientOrderID, qty, a.mark, OrderFilled), nil
}

func (a *DryRunAdapter) QueryOrder(_ context.Context, _ string, orderID int64) (OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if res, ok := a.orders[orderID]; ok {
		return res, nil
	}
	return OrderResult{OrderID: orderID, Status: OrderCanceled}, nil
}

func (a *DryRunAdapter) CancelOrder(_ context.Context, _ string, orderID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if res, ok := a.orders[orderID]; ok {
		res.Status = OrderCanceled
		a.orders[orderID] = res
	}
	return nil
}

func (a *DryRunAdapter) ListOpenOrders(_ context.Context, symbol string) ([]OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []OrderResult
	for _, o := range a.orders {
		if o.Status.Open() {
			out = append(out, o)
		}
	}
	return out, nil
}
