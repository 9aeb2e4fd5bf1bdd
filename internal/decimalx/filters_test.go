package decimalx

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestFloorToStep(t *testing.T) {
	cases := []struct {
		name  string
		value string
		step  string
		want  string
	}{
		{"exact multiple", "1.500", "0.1", "1.5"},
		{"truncates remainder", "1.2345", "0.001", "1.234"},
		{"zero step is passthrough", "1.2345", "0", "1.2345"},
		{"negative value floors to zero", "-5", "0.1", "0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := FloorToStep(d(c.value), d(c.step))
			if !got.Equal(d(c.want)) {
				t.Errorf("FloorToStep(%s, %s) = %s, want %s", c.value, c.step, got, c.want)
			}
		})
	}
}

func TestCeilToStep(t *testing.T) {
	cases := []struct {
		name  string
		value string
		step  string
		want  string
	}{
		{"exact multiple unchanged", "1.5", "0.1", "1.5"},
		{"rounds up to next step", "1.201", "0.01", "1.21"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CeilToStep(d(c.value), d(c.step))
			if !got.Equal(d(c.want)) {
				t.Errorf("CeilToStep(%s, %s) = %s, want %s", c.value, c.step, got, c.want)
			}
		})
	}
}

func btcFilters() SymbolFilters {
	return SymbolFilters{
		StepSize:    d("0.001"),
		MinQty:      d("0.001"),
		MaxQty:      d("1000"),
		TickSize:    d("0.1"),
		MinPrice:    d("0.1"),
		MaxPrice:    d("1000000"),
		MinNotional: d("5"),
	}
}

func TestQuantizeQty_FloorsToStep(t *testing.T) {
	qty, ok := QuantizeQty(btcFilters(), d("0.12349"), d("50000"))
	if !ok {
		t.Fatal("expected a valid quantity")
	}
	if !qty.Equal(d("0.123")) {
		t.Errorf("got %s, want 0.123", qty)
	}
}

func TestQuantizeQty_BumpsForMinNotional(t *testing.T) {
	// raw qty below min-notional at this trigger price: 5/50000 = 0.0001 -> floored to 0
	qty, ok := QuantizeQty(btcFilters(), d("0.00005"), d("50000"))
	if !ok {
		t.Fatal("expected min-notional to be satisfiable")
	}
	notional := qty.Mul(d("50000"))
	if notional.LessThan(d("5")) {
		t.Errorf("notional %s still below min-notional 5 after bump", notional)
	}
}

func TestQuantizeQty_RejectsWhenMinNotionalUnreachable(t *testing.T) {
	f := btcFilters()
	f.MaxQty = d("0.0001")
	_, ok := QuantizeQty(f, d("0.00005"), d("50000"))
	if ok {
		t.Error("expected quantization to fail: min-notional unreachable under max-qty")
	}
}

func TestQuantizePrice_OutOfRange(t *testing.T) {
	f := btcFilters()
	_, ok := QuantizePrice(f, d("0.01"))
	if ok {
		t.Error("expected price below min-price to be rejected")
	}
}

func TestQuantizePrice_ClampsToMax(t *testing.T) {
	f := btcFilters()
	got, ok := QuantizePrice(f, d("2000000"))
	if !ok {
		t.Fatal("expected clamped price to be valid")
	}
	if !got.Equal(d("1000000")) {
		t.Errorf("got %s, want 1000000", got)
	}
}
