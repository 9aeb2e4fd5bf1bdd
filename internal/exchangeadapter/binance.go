package exchangeadapter

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tradecore/internal/decimalx"
)

// BinanceAdapter implements Adapter on top of the futures SDK client already
// used elsewhere in this codebase.
type BinanceAdapter struct {
	client *futures.Client
}

// NewBinanceAdapter wraps an already-constructed futures client.
func NewBinanceAdapter(client *futures.Client) *BinanceAdapter {
	return &BinanceAdapter{client: client}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a *BinanceAdapter) SymbolFilters(ctx context.Context, symbol string) (decimalx.SymbolFilters, error) {
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return decimalx.SymbolFilters{}, Wrap(err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		out := decimalx.SymbolFilters{}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				out.StepSize = dec(toString(f["stepSize"]))
				out.MinQty = dec(toString(f["minQty"]))
				out.MaxQty = dec(toString(f["maxQty"]))
			case "PRICE_FILTER":
				out.TickSize = dec(toString(f["tickSize"]))
				out.MinPrice = dec(toString(f["minPrice"]))
				out.MaxPrice = dec(toString(f["maxPrice"]))
			case "MIN_NOTIONAL", "NOTIONAL":
				if v, ok := f["notional"]; ok {
					out.MinNotional = dec(toString(v))
				} else if v, ok := f["minNotional"]; ok {
					out.MinNotional = dec(toString(v))
				}
			}
		}
		return out, nil
	}
	return decimalx.SymbolFilters{}, fmt.Errorf("exchangeadapter: unknown symbol %s", symbol)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func (a *BinanceAdapter) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := a.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, Wrap(err)
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			return dec(b.AvailableBalance), nil
		}
	}
	return decimal.Zero, nil
}

func (a *BinanceAdapter) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := a.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, Wrap(err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return dec(p.MarkPrice), nil
		}
	}
	return decimal.Zero, fmt.Errorf("exchangeadapter: no mark price for %s", symbol)
}

func (a *BinanceAdapter) PositionRisk(ctx context.Context, symbol string) (Position, error) {
	risks, err := a.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return Position{}, Wrap(err)
	}
	for _, r := range risks {
		if r.Symbol == symbol {
			return Position{
				Symbol:      symbol,
				PositionAmt: dec(r.PositionAmt),
				EntryPrice:  dec(r.EntryPrice),
			}, nil
		}
	}
	return Position{Symbol: symbol}, nil
}

func (a *BinanceAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := a.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return Wrap(err)
}

func toSide(s OrderSide) futures.SideType {
	if s == SideBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func fromOrder(o *futures.CreateOrderResponse) OrderResult {
	return OrderResult{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Status:        OrderStatus(o.Status),
		ExecutedQty:   dec(o.ExecutedQuantity),
		AvgPrice:      dec(o.AvgPrice),
	}
}

func (a *BinanceAdapter) PlaceLimitOrder(ctx context.Context, symbol string, side OrderSide, qty, price decimal.Decimal, reduceOnly bool, clientOrderID string) (OrderResult, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(toSide(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(qty.String()).
		Price(price.String()).
		ReduceOnly(reduceOnly).
		NewClientOrderID(clientOrderID)
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, Wrap(err)
	}
	return fromOrder(res), nil
}

func (a *BinanceAdapter) PlaceStopMarketOrder(ctx context.Context, symbol string, side OrderSide, qty, stopPrice decimal.Decimal, clientOrderID string) (OrderResult, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(toSide(side)).
		Type(futures.OrderTypeStopMarket).
		StopPrice(stopPrice.String()).
		ClosePosition(false).
		Quantity(qty.String()).
		ReduceOnly(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		PriceProtect(true).
		NewClientOrderID(clientOrderID)
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, Wrap(err)
	}
	return fromOrder(res), nil
}

func (a *BinanceAdapter) PlaceTakeProfitLimitOrder(ctx context.Context, symbol string, side OrderSide, qty, price, stopPrice decimal.Decimal, clientOrderID string) (OrderResult, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(toSide(side)).
		Type(futures.OrderTypeTakeProfit).
		Price(price.String()).
		StopPrice(stopPrice.String()).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(qty.String()).
		ReduceOnly(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		NewClientOrderID(clientOrderID)
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, Wrap(err)
	}
	return fromOrder(res), nil
}

func (a *BinanceAdapter) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal, reduceOnly bool, clientOrderID string) (OrderResult, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(toSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		ReduceOnly(reduceOnly).
		NewClientOrderID(clientOrderID)
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, Wrap(err)
	}
	return fromOrder(res), nil
}

func (a *BinanceAdapter) QueryOrder(ctx context.Context, symbol string, orderID int64) (OrderResult, error) {
	o, err := a.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return OrderResult{}, Wrap(err)
	}
	return OrderResult{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Status:        OrderStatus(o.Status),
		ExecutedQty:   dec(o.ExecutedQuantity),
		AvgPrice:      dec(o.AvgPrice),
	}, nil
}

func (a *BinanceAdapter) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := a.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil && Classify(err) == KindOrderNotFound {
		return nil
	}
	return Wrap(err)
}

func (a *BinanceAdapter) ListOpenOrders(ctx context.Context, symbol string) ([]OrderResult, error) {
	orders, err := a.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, Wrap(err)
	}
	out := make([]OrderResult, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderResult{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Status:        OrderStatus(o.Status),
			ExecutedQty:   dec(o.ExecutedQuantity),
			AvgPrice:      dec(o.AvgPrice),
		})
	}
	return out, nil
}
