package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
)

func bar(tsMin int64, open, high, low, close string) model.Candle {
	o, _ := decimal.NewFromString(open)
	h, _ := decimal.NewFromString(high)
	l, _ := decimal.NewFromString(low)
	c, _ := decimal.NewFromString(close)
	return model.Candle{
		TsMs:      tsMin * 60000,
		Symbol:    "BTCUSDT",
		Timeframe: model.Timeframe1m,
		Open:      o, High: h, Low: l, Close: c,
		Volume: decimal.NewFromInt(1),
		Color:  model.ColorOf(o, c),
	}
}

func TestFeed_EvenThenOddEmitsMergedBar(t *testing.T) {
	a := New()

	_, ok := a.Feed(bar(10, "100", "105", "99", "103"))
	if ok {
		t.Fatal("even-minute bar should not emit")
	}

	out, ok := a.Feed(bar(11, "103", "110", "101", "108"))
	if !ok {
		t.Fatal("odd-minute bar following a pending even bar should emit")
	}
	if out.Timeframe != model.Timeframe2m {
		t.Errorf("expected 2m timeframe, got %s", out.Timeframe)
	}
	if !out.Open.Equal(decimal.NewFromInt(100)) {
		t.Errorf("open = %s, want 100 (from the even bar)", out.Open)
	}
	if !out.Close.Equal(decimal.NewFromInt(108)) {
		t.Errorf("close = %s, want 108 (from the odd bar)", out.Close)
	}
	if !out.High.Equal(decimal.NewFromInt(110)) {
		t.Errorf("high = %s, want 110 (max of both)", out.High)
	}
	if !out.Low.Equal(decimal.NewFromInt(99)) {
		t.Errorf("low = %s, want 99 (min of both)", out.Low)
	}
	if !out.Volume.Equal(decimal.NewFromInt(2)) {
		t.Errorf("volume = %s, want 2 (summed)", out.Volume)
	}
}

func TestFeed_OddWithoutPendingIsDropped(t *testing.T) {
	a := New()
	_, ok := a.Feed(bar(11, "100", "101", "99", "100"))
	if ok {
		t.Error("odd-minute bar with no pending even bar must not emit (warmup condition)")
	}
}

func TestFeed_ConsecutiveEvenBarsOverwritePending(t *testing.T) {
	a := New()
	a.Feed(bar(10, "100", "101", "99", "100"))
	a.Feed(bar(12, "200", "201", "199", "200")) // a second even bar before its odd partner

	out, ok := a.Feed(bar(13, "200", "205", "198", "202"))
	if !ok {
		t.Fatal("expected emission from the second even/odd pair")
	}
	if !out.Open.Equal(decimal.NewFromInt(200)) {
		t.Errorf("open = %s, want 200 (the most recent even bar, not the stale one)", out.Open)
	}
}
