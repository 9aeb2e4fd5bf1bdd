package calculator

import (
	"tradecore/internal/model"

	"github.com/shopspring/decimal"
)

// SignalGenerator turns a regime transition into zero, one, or two ordered
// signals. Two signals only ever occur for a direct long<->short flip
// (disarm-then-arm) or an unchanged regime with a newly selected indicator
// candle (disarm "update_pending" then re-arm) — never more.
type SignalGenerator struct {
	TickSize decimal.Decimal
	Version  string
}

// NewSignalGenerator returns a generator with version "1".
func NewSignalGenerator(tickSize decimal.Decimal) *SignalGenerator {
	return &SignalGenerator{TickSize: tickSize, Version: "1"}
}

func (g *SignalGenerator) arm(symbol string, tf model.Timeframe, ts int64, side model.Side, indTs int64, indHigh, indLow decimal.Decimal) model.ArmSignal {
	var trigger, stop decimal.Decimal
	if side == model.SideLong {
		trigger = indHigh.Add(g.TickSize)
		stop = indLow.Sub(g.TickSize)
	} else {
		trigger = indLow.Sub(g.TickSize)
		stop = indHigh.Add(g.TickSize)
	}
	return model.ArmSignal{
		SignalHeader: model.SignalHeader{Version: g.Version, Symbol: symbol, Timeframe: tf, Ts: ts},
		Side:         side,
		IndTs:        indTs,
		IndHigh:      indHigh,
		IndLow:       indLow,
		Trigger:      trigger,
		Stop:         stop,
	}
}

func (g *SignalGenerator) disarm(symbol string, tf model.Timeframe, ts int64, prevSide model.Side, reason string) model.DisarmSignal {
	return model.DisarmSignal{
		SignalHeader: model.SignalHeader{Version: g.Version, Symbol: symbol, Timeframe: tf, Ts: ts},
		PrevSide:     prevSide,
		Reason:       reason,
	}
}

func isDirectional(r model.Regime) bool {
	return r == model.RegimeLong || r == model.RegimeShort
}

func toSide(r model.Regime) model.Side {
	if r == model.RegimeLong {
		return model.SideLong
	}
	return model.SideShort
}

// Transition evaluates the prior regime/indicator candle against the current
// one and returns the ordered signals to publish (possibly none). hasPrev is
// false while no earlier regime has been recorded (the Calculator's first
// bar with both MAs ready) — no signal is ever emitted then.
func (g *SignalGenerator) Transition(
	symbol string, tf model.Timeframe, ts int64,
	prevRegime model.Regime, prevIndTs int64, hasPrev bool,
	regime model.Regime, indTs int64, indHigh, indLow decimal.Decimal,
) []model.Signal {
	if !hasPrev {
		return nil
	}

	switch {
	case !isDirectional(prevRegime) && isDirectional(regime):
		// neutral -> long|short
		return []model.Signal{g.arm(symbol, tf, ts, toSide(regime), indTs, indHigh, indLow)}

	case isDirectional(prevRegime) && !isDirectional(regime):
		// long|short -> neutral
		reason := "regime:" + string(prevRegime) + "->" + string(regime)
		return []model.Signal{g.disarm(symbol, tf, ts, toSide(prevRegime), reason)}

	case isDirectional(prevRegime) && isDirectional(regime) && prevRegime != regime:
		// direct flip: disarm old side, then arm new side
		reason := "regime:" + string(prevRegime) + "->" + string(regime)
		return []model.Signal{
			g.disarm(symbol, tf, ts, toSide(prevRegime), reason),
			g.arm(symbol, tf, ts, toSide(regime), indTs, indHigh, indLow),
		}

	case isDirectional(prevRegime) && regime == prevRegime && indTs != prevIndTs:
		// unchanged regime, new indicator candle: disarm stale pending, re-arm
		return []model.Signal{
			g.disarm(symbol, tf, ts, toSide(prevRegime), "update_pending"),
			g.arm(symbol, tf, ts, toSide(regime), indTs, indHigh, indLow),
		}

	default:
		return nil
	}
}
