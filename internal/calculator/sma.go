package calculator

import "github.com/shopspring/decimal"

// RollingSMA maintains a fixed-size rolling sum, evicting the oldest value
// once the window is full. It is not ready (MA absent) until the window
// fills for the first time.
type RollingSMA struct {
	period int
	window []decimal.Decimal
	sum    decimal.Decimal
	next   int
	filled bool
}

// NewRollingSMA returns an empty window of the given period.
func NewRollingSMA(period int) *RollingSMA {
	return &RollingSMA{
		period: period,
		window: make([]decimal.Decimal, period),
	}
}

// Add folds in one new close and returns the current average and whether the
// window is full (ready).
func (r *RollingSMA) Add(value decimal.Decimal) (decimal.Decimal, bool) {
	if r.filled {
		r.sum = r.sum.Sub(r.window[r.next])
	}
	r.window[r.next] = value
	r.sum = r.sum.Add(value)
	r.next = (r.next + 1) % r.period

	if !r.filled && r.next == 0 {
		r.filled = true
	}
	if !r.filled {
		return decimal.Zero, false
	}
	return r.sum.Div(decimal.NewFromInt(int64(r.period))), true
}

// Ready reports whether the window has filled at least once.
func (r *RollingSMA) Ready() bool {
	return r.filled
}
