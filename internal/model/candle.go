// Package model holds the wire/storage types shared by every pipeline stage:
// candles, indicator snapshots, signals, bot configuration and order state.
package model

import "github.com/shopspring/decimal"

// Color classifies a candle by its open/close relationship.
type Color string

const (
	ColorGreen Color = "green"
	ColorRed   Color = "red"
)

// Timeframe identifies the bar interval a candle or stream belongs to.
type Timeframe string

const (
	Timeframe1m Timeframe = "1m"
	Timeframe2m Timeframe = "2m"
)

// Candle is an immutable OHLCV bar keyed by its close timestamp.
type Candle struct {
	TsMs       int64
	Symbol     string
	Timeframe  Timeframe
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount int64
	Color      Color
}

// ColorOf derives a candle's color from open vs close.
func ColorOf(open, close decimal.Decimal) Color {
	if close.GreaterThanOrEqual(open) {
		return ColorGreen
	}
	return ColorRed
}

// IsDoji reports whether a candle's close equals its open exactly.
func (c Candle) IsDoji() bool {
	return c.Close.Equal(c.Open)
}

// Regime is the directional state derived from the moving averages.
type Regime string

const (
	RegimeLong    Regime = "long"
	RegimeShort   Regime = "short"
	RegimeNeutral Regime = "neutral"
)

// IndicatorState is the per-bar derived snapshot published by the calculator.
type IndicatorState struct {
	Symbol    string
	Timeframe Timeframe
	Ts        int64
	Close     decimal.Decimal
	MA20      *decimal.Decimal
	MA200     *decimal.Decimal
	Regime    Regime
	IndTs     int64
	IndHigh   decimal.Decimal
	IndLow    decimal.Decimal
}

// Ready reports whether both moving averages have filled their windows.
func (s IndicatorState) Ready() bool {
	return s.MA20 != nil && s.MA200 != nil
}
