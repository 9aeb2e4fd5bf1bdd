package calculator

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
)

func newGen() *SignalGenerator {
	return NewSignalGenerator(decimal.NewFromFloat(0.1))
}

func TestTransition_FirstBarNeverSignals(t *testing.T) {
	g := newGen()
	got := g.Transition("BTCUSDT", model.Timeframe2m, 1000, model.RegimeNeutral, 0, false,
		model.RegimeLong, 1000, decimal.NewFromInt(105), decimal.NewFromInt(95))
	if got != nil {
		t.Errorf("expected no signal on the first bar, got %v", got)
	}
}

func TestTransition_NeutralToLongEmitsArm(t *testing.T) {
	g := newGen()
	got := g.Transition("BTCUSDT", model.Timeframe2m, 2000, model.RegimeNeutral, 1000, true,
		model.RegimeLong, 2000, decimal.NewFromInt(105), decimal.NewFromInt(95))
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 signal, got %d", len(got))
	}
	arm, ok := got[0].(model.ArmSignal)
	if !ok {
		t.Fatalf("expected ArmSignal, got %T", got[0])
	}
	if arm.Side != model.SideLong {
		t.Errorf("side = %s, want long", arm.Side)
	}
	if !arm.Trigger.Equal(decimal.NewFromFloat(105.1)) {
		t.Errorf("trigger = %s, want 105.1 (ind_high + tick)", arm.Trigger)
	}
	if !arm.Stop.Equal(decimal.NewFromFloat(94.9)) {
		t.Errorf("stop = %s, want 94.9 (ind_low - tick)", arm.Stop)
	}
}

func TestTransition_LongToNeutralEmitsDisarm(t *testing.T) {
	g := newGen()
	got := g.Transition("BTCUSDT", model.Timeframe2m, 2000, model.RegimeLong, 1000, true,
		model.RegimeNeutral, 2000, decimal.Zero, decimal.Zero)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 signal, got %d", len(got))
	}
	disarm, ok := got[0].(model.DisarmSignal)
	if !ok {
		t.Fatalf("expected DisarmSignal, got %T", got[0])
	}
	if disarm.PrevSide != model.SideLong {
		t.Errorf("prev_side = %s, want long", disarm.PrevSide)
	}
}

func TestTransition_DirectFlipEmitsDisarmThenArm(t *testing.T) {
	g := newGen()
	got := g.Transition("BTCUSDT", model.Timeframe2m, 2000, model.RegimeLong, 1000, true,
		model.RegimeShort, 2000, decimal.NewFromInt(105), decimal.NewFromInt(95))
	if len(got) != 2 {
		t.Fatalf("expected exactly 2 signals (disarm then arm), got %d", len(got))
	}
	if _, ok := got[0].(model.DisarmSignal); !ok {
		t.Errorf("first signal should be DisarmSignal, got %T", got[0])
	}
	arm, ok := got[1].(model.ArmSignal)
	if !ok {
		t.Fatalf("second signal should be ArmSignal, got %T", got[1])
	}
	if arm.Side != model.SideShort {
		t.Errorf("new arm side = %s, want short", arm.Side)
	}
}

func TestTransition_SameRegimeNewIndicatorCandleUpdatesPending(t *testing.T) {
	g := newGen()
	got := g.Transition("BTCUSDT", model.Timeframe2m, 2000, model.RegimeLong, 1000, true,
		model.RegimeLong, 1800, decimal.NewFromInt(106), decimal.NewFromInt(96))
	if len(got) != 2 {
		t.Fatalf("expected disarm(update_pending)+arm, got %d signals", len(got))
	}
	disarm := got[0].(model.DisarmSignal)
	if disarm.Reason != "update_pending" {
		t.Errorf("reason = %q, want update_pending", disarm.Reason)
	}
}

func TestTransition_SameRegimeSameIndicatorCandleIsQuiet(t *testing.T) {
	g := newGen()
	got := g.Transition("BTCUSDT", model.Timeframe2m, 2000, model.RegimeLong, 1000, true,
		model.RegimeLong, 1000, decimal.NewFromInt(105), decimal.NewFromInt(95))
	if got != nil {
		t.Errorf("expected no signal when regime and indicator candle are unchanged, got %v", got)
	}
}

func TestTransition_ShortArmInvertsTriggerAndStop(t *testing.T) {
	g := newGen()
	got := g.Transition("BTCUSDT", model.Timeframe2m, 2000, model.RegimeNeutral, 1000, true,
		model.RegimeShort, 2000, decimal.NewFromInt(105), decimal.NewFromInt(95))
	arm := got[0].(model.ArmSignal)
	if !arm.Trigger.Equal(decimal.NewFromFloat(94.9)) {
		t.Errorf("short trigger = %s, want 94.9 (ind_low - tick)", arm.Trigger)
	}
	if !arm.Stop.Equal(decimal.NewFromFloat(105.1)) {
		t.Errorf("short stop = %s, want 105.1 (ind_high + tick)", arm.Stop)
	}
}
