package executor

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/internal/decimalx"
	"tradecore/internal/model"
)

func btcFilters() decimalx.SymbolFilters {
	return decimalx.SymbolFilters{
		StepSize:    decimal.NewFromFloat(0.001),
		MinQty:      decimal.NewFromFloat(0.001),
		MaxQty:      decimal.NewFromInt(1000),
		TickSize:    decimal.NewFromFloat(0.1),
		MinPrice:    decimal.NewFromFloat(0.1),
		MaxPrice:    decimal.NewFromInt(1000000),
		MinNotional: decimal.NewFromInt(5),
	}
}

func armAt(trigger, stop string, side model.Side) model.ArmSignal {
	t, _ := decimal.NewFromString(trigger)
	s, _ := decimal.NewFromString(stop)
	return model.ArmSignal{
		SignalHeader: model.SignalHeader{Symbol: "BTCUSDT"},
		Side:         side,
		Trigger:      t,
		Stop:         s,
	}
}

func TestComputeSizing_FixedNotionalMode(t *testing.T) {
	bot := model.BotConfig{
		SizingMode:    model.SizingFixedNotional,
		FixedNotional: decimal.NewFromInt(1000),
		Leverage:      10,
	}
	sig := armAt("50000", "49000", model.SideLong)

	s := ComputeSizing(bot, sig, decimal.NewFromInt(10000), btcFilters())
	if s.Skip != SkipNone {
		t.Fatalf("unexpected skip: %s (%s)", s.Skip, s.Detail)
	}
	// 1000/50000 = 0.02 BTC, floored to step 0.001 -> 0.02
	if !s.Qty.Equal(decimal.NewFromFloat(0.02)) {
		t.Errorf("qty = %s, want 0.02", s.Qty)
	}
	wantMargin := decimal.NewFromFloat(0.02).Mul(decimal.NewFromInt(50000)).Div(decimal.NewFromInt(10))
	if !s.Margin.Equal(wantMargin) {
		t.Errorf("margin = %s, want %s", s.Margin, wantMargin)
	}
}

func TestComputeSizing_BalancePctMode(t *testing.T) {
	bot := model.BotConfig{
		SizingMode: model.SizingBalancePct,
		BalancePct: decimal.NewFromFloat(0.5),
		Leverage:   1,
	}
	sig := armAt("100", "95", model.SideLong)

	s := ComputeSizing(bot, sig, decimal.NewFromInt(1000), btcFilters())
	if s.Skip != SkipNone {
		t.Fatalf("unexpected skip: %s (%s)", s.Skip, s.Detail)
	}
	// target notional = 500, qty = 5
	if !s.Qty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("qty = %s, want 5", s.Qty)
	}
}

func TestComputeSizing_BalancePctClampedToOne(t *testing.T) {
	bot := model.BotConfig{
		SizingMode: model.SizingBalancePct,
		BalancePct: decimal.NewFromFloat(2.0), // over 100%, must clamp to 1.0
		Leverage:   1,
	}
	sig := armAt("100", "95", model.SideLong)

	s := ComputeSizing(bot, sig, decimal.NewFromInt(1000), btcFilters())
	if s.Skip != SkipNone {
		t.Fatalf("unexpected skip: %s", s.Detail)
	}
	if !s.Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("qty = %s, want 10 (clamped to 100%% of balance)", s.Qty)
	}
}

func TestComputeSizing_MaxPositionCapApplied(t *testing.T) {
	bot := model.BotConfig{
		SizingMode:      model.SizingFixedNotional,
		FixedNotional:   decimal.NewFromInt(10000),
		MaxPositionUSDT: decimal.NewFromInt(1000),
		Leverage:        1,
	}
	sig := armAt("100", "95", model.SideLong)

	s := ComputeSizing(bot, sig, decimal.NewFromInt(100000), btcFilters())
	if s.Skip != SkipNone {
		t.Fatalf("unexpected skip: %s", s.Detail)
	}
	if !s.Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("qty = %s, want 10 (capped target notional 1000/100)", s.Qty)
	}
}

func TestComputeSizing_SkipsWhenMarginExceedsBalance(t *testing.T) {
	bot := model.BotConfig{
		SizingMode:    model.SizingFixedNotional,
		FixedNotional: decimal.NewFromInt(1000),
		Leverage:      1,
	}
	sig := armAt("100", "95", model.SideLong)

	s := ComputeSizing(bot, sig, decimal.NewFromInt(10), btcFilters())
	if s.Skip != SkipLowBalance {
		t.Fatalf("expected SkipLowBalance, got %q (%s)", s.Skip, s.Detail)
	}
}

func TestComputeSizing_SkipsWhenNoSizingModeConfigured(t *testing.T) {
	bot := model.BotConfig{}
	sig := armAt("100", "95", model.SideLong)

	s := ComputeSizing(bot, sig, decimal.NewFromInt(1000), btcFilters())
	if s.Skip != SkipBadRequest {
		t.Fatalf("expected SkipBadRequest, got %q", s.Skip)
	}
}

func TestComputeSizing_SkipsWhenNotionalTooSmallForFilters(t *testing.T) {
	bot := model.BotConfig{
		SizingMode:    model.SizingFixedNotional,
		FixedNotional: decimal.NewFromFloat(0.0001),
		Leverage:      1,
	}
	sig := armAt("50000", "49000", model.SideLong)

	s := ComputeSizing(bot, sig, decimal.NewFromInt(1), btcFilters())
	// target notional 0.0001 -> rawQty tiny -> floors to 0 -> MinQty bump to 0.001
	// notional 0.001 @ 50000 = 50 already clears min notional 5 -> margin 50 > balance of 1 -> low balance skip
	if s.Skip != SkipLowBalance {
		t.Fatalf("expected SkipLowBalance once filters force a larger qty than can be afforded, got %q (%s)", s.Skip, s.Detail)
	}
}

func TestSafetyGateViolation_RejectsNarrowSpread(t *testing.T) {
	trigger := decimal.NewFromInt(100)
	stop := decimal.NewFromFloat(99.99) // 0.01/100 = 1bps, below the 5bps minimum
	if reason := SafetyGateViolation(trigger, stop, decimal.Zero, model.SideLong); reason == "" {
		t.Error("expected a safety gate rejection for a sub-5bps spread")
	}
}

func TestSafetyGateViolation_AcceptsWideEnoughSpreadWithNoMarkPrice(t *testing.T) {
	trigger := decimal.NewFromInt(100)
	stop := decimal.NewFromInt(95)
	if reason := SafetyGateViolation(trigger, stop, decimal.Zero, model.SideLong); reason != "" {
		t.Errorf("expected no rejection, got %q", reason)
	}
}

func TestSafetyGateViolation_RejectsLongEntryFarBelowMark(t *testing.T) {
	trigger := decimal.NewFromInt(100)
	stop := decimal.NewFromInt(80)
	mark := decimal.NewFromFloat(120) // entry drift vs mark well over 15bps
	if reason := SafetyGateViolation(trigger, stop, mark, model.SideLong); reason == "" {
		t.Error("expected rejection: long entry far below mark price by more than 15bps")
	}
}

func TestSafetyGateViolation_RejectsShortEntryFarAboveMark(t *testing.T) {
	trigger := decimal.NewFromInt(120)
	stop := decimal.NewFromInt(140)
	mark := decimal.NewFromInt(100)
	if reason := SafetyGateViolation(trigger, stop, mark, model.SideShort); reason == "" {
		t.Error("expected rejection: short entry far above mark price by more than 15bps")
	}
}

func TestSafetyGateViolation_RejectsNonPositiveTrigger(t *testing.T) {
	if reason := SafetyGateViolation(decimal.Zero, decimal.NewFromInt(-5), decimal.Zero, model.SideLong); reason == "" {
		t.Error("expected rejection for a non-positive trigger")
	}
}

func TestTakeProfitPrice_LongAddsRiskMultiple(t *testing.T) {
	trigger := decimal.NewFromInt(100)
	stop := decimal.NewFromInt(90)
	tp := TakeProfitPrice(trigger, stop, decimal.NewFromInt(2), model.SideLong)
	if !tp.Equal(decimal.NewFromInt(120)) {
		t.Errorf("tp = %s, want 120 (100 + 2x10 risk)", tp)
	}
}

func TestTakeProfitPrice_ShortSubtractsRiskMultiple(t *testing.T) {
	trigger := decimal.NewFromInt(100)
	stop := decimal.NewFromInt(110)
	tp := TakeProfitPrice(trigger, stop, decimal.NewFromInt(2), model.SideShort)
	if !tp.Equal(decimal.NewFromInt(80)) {
		t.Errorf("tp = %s, want 80 (100 - 2x10 risk)", tp)
	}
}
