// Package aggregator folds closed 1-minute candles into 2-minute bars.
package aggregator

import (
	"tradecore/internal/model"
)

// TwoMinuteAggregator holds, per symbol, at most one pending even-minute bar
// awaiting its odd-minute partner. It is not safe for concurrent use; each
// ingestor symbol task owns one instance.
type TwoMinuteAggregator struct {
	pending *model.Candle
}

// New returns an empty aggregator with no pending bar.
func New() *TwoMinuteAggregator {
	return &TwoMinuteAggregator{}
}

func isEvenMinuteClose(tsMs int64) bool {
	minute := (tsMs / 60000) % 2
	return minute == 0
}

// Feed incorporates one closed 1-minute bar. It returns the emitted 2-minute
// bar and true when an odd-minute bar completes a pending even-minute bar;
// otherwise ok is false (either a fresh even-minute bar was stored, or an
// odd-minute bar arrived with nothing pending — the warmup/drop case).
func (a *TwoMinuteAggregator) Feed(bar model.Candle) (model.Candle, bool) {
	if isEvenMinuteClose(bar.TsMs) {
		stored := bar
		a.pending = &stored
		return model.Candle{}, false
	}

	if a.pending == nil {
		// Odd-minute bar with no pending even bar: warmup condition, drop.
		return model.Candle{}, false
	}

	even := *a.pending
	a.pending = nil

	high := even.High
	if bar.High.GreaterThan(high) {
		high = bar.High
	}
	low := even.Low
	if bar.Low.LessThan(low) {
		low = bar.Low
	}

	out := model.Candle{
		TsMs:       bar.TsMs,
		Symbol:     bar.Symbol,
		Timeframe:  model.Timeframe2m,
		Open:       even.Open,
		High:       high,
		Low:        low,
		Close:      bar.Close,
		Volume:     even.Volume.Add(bar.Volume),
		TradeCount: even.TradeCount + bar.TradeCount,
		Color:      model.ColorOf(even.Open, bar.Close),
	}
	return out, true
}
