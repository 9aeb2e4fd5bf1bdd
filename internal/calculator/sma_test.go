package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRollingSMA_NotReadyUntilWindowFills(t *testing.T) {
	sma := NewRollingSMA(3)
	for i := 0; i < 2; i++ {
		_, ready := sma.Add(decimal.NewFromInt(int64(i + 1)))
		if ready {
			t.Fatalf("add %d: window should not be ready before %d values", i, 3)
		}
	}
	avg, ready := sma.Add(decimal.NewFromInt(3))
	if !ready {
		t.Fatal("window should be ready after 3 values")
	}
	if !avg.Equal(decimal.NewFromInt(2)) {
		t.Errorf("avg = %s, want 2 (mean of 1,2,3)", avg)
	}
}

func TestRollingSMA_EvictsOldestOnOverflow(t *testing.T) {
	sma := NewRollingSMA(3)
	sma.Add(decimal.NewFromInt(10))
	sma.Add(decimal.NewFromInt(20))
	sma.Add(decimal.NewFromInt(30))
	avg, ready := sma.Add(decimal.NewFromInt(60)) // evicts the 10
	if !ready {
		t.Fatal("expected ready")
	}
	want := decimal.NewFromInt(20 + 30 + 60).Div(decimal.NewFromInt(3))
	if !avg.Equal(want) {
		t.Errorf("avg = %s, want %s", avg, want)
	}
}
