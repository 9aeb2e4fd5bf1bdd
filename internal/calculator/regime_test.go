package calculator

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
)

func dp(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestDecideRegime(t *testing.T) {
	cases := []struct {
		name          string
		ma20, ma200   *decimal.Decimal
		closeForLong  int64
		closeForShort int64
		want          model.Regime
	}{
		{"nil averages stay neutral", nil, nil, 0, 0, model.RegimeNeutral},
		{"bullish cross with close above ma20", dp(110), dp(100), 115, 115, model.RegimeLong},
		{"bullish cross but close below ma20 stays neutral", dp(110), dp(100), 105, 105, model.RegimeNeutral},
		{"bearish cross with close below ma20", dp(90), dp(100), 85, 85, model.RegimeShort},
		{"bearish cross but close above ma20 stays neutral", dp(90), dp(100), 95, 95, model.RegimeNeutral},
		{"equal averages stay neutral", dp(100), dp(100), 200, 1, model.RegimeNeutral},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DecideRegime(c.ma20, c.ma200, decimal.NewFromInt(c.closeForLong), decimal.NewFromInt(c.closeForShort))
			if got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestIndicatorCandle_PicksLastOppositeColorBar(t *testing.T) {
	lastRed := model.Candle{TsMs: 1, Close: decimal.NewFromInt(90)}
	lastGreen := model.Candle{TsMs: 2, Close: decimal.NewFromInt(110)}
	current := model.Candle{TsMs: 3, Close: decimal.NewFromInt(105)}

	got := IndicatorCandle(dp(110), dp(100), lastRed, lastGreen, current, true, true)
	if got.TsMs != lastRed.TsMs {
		t.Errorf("bullish cross should reference the last red bar, got ts=%d", got.TsMs)
	}

	got = IndicatorCandle(dp(90), dp(100), lastRed, lastGreen, current, true, true)
	if got.TsMs != lastGreen.TsMs {
		t.Errorf("bearish cross should reference the last green bar, got ts=%d", got.TsMs)
	}
}

func TestIndicatorCandle_FallsBackToCurrentWhenNoQualifyingBarSeen(t *testing.T) {
	current := model.Candle{TsMs: 3}
	got := IndicatorCandle(dp(110), dp(100), model.Candle{}, model.Candle{}, current, false, false)
	if got.TsMs != current.TsMs {
		t.Error("expected fallback to current bar when no last-red bar has been observed yet")
	}
}
