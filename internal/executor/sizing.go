package executor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradecore/internal/decimalx"
	"tradecore/internal/model"
)

// SkipReason distinguishes the two terminal-without-placement outcomes the
// sizing pipeline can produce: a hard rejection vs. an underfunded bot.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipLowBalance  SkipReason = "skipped_low_balance"
	SkipBadRequest  SkipReason = "bad_request"
)

// Sizing is the result of §4.4 steps 1-9: a quantized, margin-checked
// quantity and entry price ready for order placement, or a skip reason.
type Sizing struct {
	Qty     decimal.Decimal
	Price   decimal.Decimal
	Margin  decimal.Decimal
	Skip    SkipReason
	Detail  string
}

var minSpreadBps5 = decimal.NewFromFloat(0.0005)

// ComputeSizing runs the deterministic, decimal-exact sizing and
// quantization algorithm against one bot/signal pair and the bot's
// available balance and symbol filters. It never touches the exchange.
func ComputeSizing(bot model.BotConfig, sig model.ArmSignal, availableBalance decimal.Decimal, filters decimalx.SymbolFilters) Sizing {
	targetNotional, ok := targetNotionalFor(bot, availableBalance)
	if !ok {
		return Sizing{Skip: SkipBadRequest, Detail: "sizing mode: neither fixed_notional nor use_balance_pct configured"}
	}

	if bot.MaxPositionUSDT.Sign() > 0 && targetNotional.GreaterThan(bot.MaxPositionUSDT) {
		targetNotional = bot.MaxPositionUSDT
	}

	rawQty := targetNotional.Div(sig.Trigger)

	qty, ok := decimalx.QuantizeQty(filters, rawQty, sig.Trigger)
	if !ok {
		return Sizing{Skip: SkipBadRequest, Detail: fmt.Sprintf("quantization: no valid qty for raw=%s trigger=%s", rawQty, sig.Trigger)}
	}

	margin := qty.Mul(sig.Trigger)
	if bot.Leverage > 0 {
		margin = margin.Div(decimal.NewFromInt(int64(bot.Leverage)))
	}
	if margin.GreaterThan(availableBalance) {
		return Sizing{Skip: SkipLowBalance, Detail: fmt.Sprintf("required margin %s exceeds available balance %s", margin, availableBalance)}
	}

	price, ok := decimalx.QuantizePrice(filters, sig.Trigger)
	if !ok || price.Sign() <= 0 {
		return Sizing{Skip: SkipBadRequest, Detail: fmt.Sprintf("trigger price %s quantized to zero/out-of-range", sig.Trigger)}
	}

	return Sizing{Qty: qty, Price: price, Margin: margin}
}

func targetNotionalFor(bot model.BotConfig, availableBalance decimal.Decimal) (decimal.Decimal, bool) {
	if bot.SizingMode == model.SizingFixedNotional && bot.FixedNotional.Sign() > 0 {
		return bot.FixedNotional, true
	}
	if bot.SizingMode == model.SizingBalancePct {
		pct := bot.BalancePct
		if pct.LessThan(decimal.Zero) {
			pct = decimal.Zero
		}
		if pct.GreaterThan(decimal.NewFromInt(1)) {
			pct = decimal.NewFromInt(1)
		}
		return availableBalance.Mul(pct), true
	}
	return decimal.Zero, false
}

// SafetyGateViolation reports the first pre-trade safety gate (§4.4) that
// rejects this trigger/stop pair, or "" if both pass.
func SafetyGateViolation(trigger, stop, markPrice decimal.Decimal, side model.Side) string {
	if trigger.Sign() <= 0 {
		return "trigger must be positive"
	}
	spread := trigger.Sub(stop).Abs().Div(trigger)
	if spread.LessThan(minSpreadBps5) {
		return fmt.Sprintf("trigger/stop spread %s below 5bps minimum", spread)
	}

	if markPrice.Sign() <= 0 {
		return ""
	}
	driftLimit := decimal.NewFromFloat(0.0015) // 15 bps
	entryDrift := trigger.Sub(markPrice).Abs().Div(markPrice)
	stopDrift := stop.Sub(markPrice).Abs().Div(markPrice)

	if side == model.SideLong {
		if trigger.LessThan(markPrice) && entryDrift.GreaterThan(driftLimit) {
			return fmt.Sprintf("long entry %s below mark %s by more than 15bps", trigger, markPrice)
		}
		if stop.GreaterThan(markPrice) && stopDrift.GreaterThan(driftLimit) {
			return fmt.Sprintf("long stop %s above mark %s by more than 15bps", stop, markPrice)
		}
	} else {
		if trigger.GreaterThan(markPrice) && entryDrift.GreaterThan(driftLimit) {
			return fmt.Sprintf("short entry %s above mark %s by more than 15bps", trigger, markPrice)
		}
		if stop.LessThan(markPrice) && stopDrift.GreaterThan(driftLimit) {
			return fmt.Sprintf("short stop %s below mark %s by more than 15bps", stop, markPrice)
		}
	}
	return ""
}

// TakeProfitPrice computes tp_price = trigger ± |trigger-stop| × R (§4.4.3).
func TakeProfitPrice(trigger, stop, r decimal.Decimal, side model.Side) decimal.Decimal {
	risk := trigger.Sub(stop).Abs().Mul(r)
	if side == model.SideLong {
		return trigger.Add(risk)
	}
	return trigger.Sub(risk)
}
