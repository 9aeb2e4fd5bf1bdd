// Package decimalx implements decimal-exact quantization against exchange
// symbol filters. No float64 is involved anywhere in this package: every
// price and quantity is a shopspring/decimal value from end to end.
package decimalx

import "github.com/shopspring/decimal"

// SymbolFilters mirrors the subset of Binance exchangeInfo filters the
// sizing and quantization pipeline needs.
type SymbolFilters struct {
	StepSize    decimal.Decimal // LOT_SIZE.stepSize
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	TickSize    decimal.Decimal // PRICE_FILTER.tickSize
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	MinNotional decimal.Decimal
}

// FloorToStep truncates value toward zero to the nearest multiple of step.
// Values at or below zero floor to zero.
func FloorToStep(value, step decimal.Decimal) decimal.Decimal {
	if value.Sign() <= 0 {
		return decimal.Zero
	}
	if step.Sign() <= 0 {
		return value
	}
	multiples := value.Div(step).Truncate(0)
	return multiples.Mul(step)
}

// CeilToStep rounds value up (away from zero) to the nearest multiple of step.
func CeilToStep(value, step decimal.Decimal) decimal.Decimal {
	if value.Sign() <= 0 {
		return decimal.Zero
	}
	if step.Sign() <= 0 {
		return value
	}
	floored := FloorToStep(value, step)
	if floored.Equal(value) {
		return floored
	}
	return floored.Add(step)
}

// QuantizeQty floors raw quantity to the symbol's lot step, enforces min/max
// bounds, and bumps the quantity up to satisfy min-notional if needed.
//
// Returns the final quantity and false if no quantity satisfying every
// constraint exists (e.g. min_notional unreachable without exceeding max_qty).
func QuantizeQty(f SymbolFilters, rawQty, trigger decimal.Decimal) (decimal.Decimal, bool) {
	qty := FloorToStep(rawQty, f.StepSize)

	if f.MaxQty.Sign() > 0 && qty.GreaterThan(f.MaxQty) {
		qty = FloorToStep(f.MaxQty, f.StepSize)
	}
	if f.MinQty.Sign() > 0 && qty.LessThan(f.MinQty) {
		qty = CeilToStep(f.MinQty, f.StepSize)
	}

	if f.MinNotional.Sign() > 0 && trigger.Sign() > 0 {
		notional := qty.Mul(trigger)
		if notional.LessThan(f.MinNotional) {
			need := f.MinNotional.Div(trigger)
			qty = CeilToStep(need, f.StepSize)
		}
	}

	if f.MaxQty.Sign() > 0 && qty.GreaterThan(f.MaxQty) {
		return decimal.Zero, false
	}
	if qty.Sign() <= 0 {
		return decimal.Zero, false
	}
	return qty, true
}

// QuantizePrice floors price to the symbol's tick size and enforces the
// min-price bound. Returns false if the quantized price is zero or below the
// min price; a price above the max price is clamped down to the max (floored
// to the tick size) rather than rejected.
func QuantizePrice(f SymbolFilters, price decimal.Decimal) (decimal.Decimal, bool) {
	quantized := FloorToStep(price, f.TickSize)
	if quantized.Sign() <= 0 {
		return decimal.Zero, false
	}
	if f.MinPrice.Sign() > 0 && quantized.LessThan(f.MinPrice) {
		return decimal.Zero, false
	}
	if f.MaxPrice.Sign() > 0 && quantized.GreaterThan(f.MaxPrice) {
		quantized = FloorToStep(f.MaxPrice, f.TickSize)
	}
	return quantized, true
}
