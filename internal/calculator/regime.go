package calculator

import (
	"tradecore/internal/model"

	"github.com/shopspring/decimal"
)

// DecideRegime classifies the current bar using both moving averages and the
// two reference closes (last-red for long, last-green for short) rather than
// a single shared reference close.
func DecideRegime(ma20, ma200 *decimal.Decimal, closeForLong, closeForShort decimal.Decimal) model.Regime {
	if ma20 == nil || ma200 == nil {
		return model.RegimeNeutral
	}
	if ma20.GreaterThan(*ma200) && closeForLong.GreaterThan(*ma20) {
		return model.RegimeLong
	}
	if ma20.LessThan(*ma200) && closeForShort.LessThan(*ma20) {
		return model.RegimeShort
	}
	return model.RegimeNeutral
}

// IndicatorCandle picks the reference bar used for trigger/stop: the last
// red bar in a bullish MA cross, the last green bar in a bearish MA cross,
// or the current bar otherwise — each with current-bar fallback when no
// qualifying bar has been seen yet.
func IndicatorCandle(ma20, ma200 *decimal.Decimal, lastRed, lastGreen, current model.Candle, haveLastRed, haveLastGreen bool) model.Candle {
	if ma20 == nil || ma200 == nil {
		return current
	}
	if ma20.GreaterThan(*ma200) {
		if haveLastRed {
			return lastRed
		}
		return current
	}
	if ma20.LessThan(*ma200) {
		if haveLastGreen {
			return lastGreen
		}
		return current
	}
	return current
}
