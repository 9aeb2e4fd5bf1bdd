package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SignalType discriminates the tagged Signal union.
type SignalType string

const (
	SignalArm    SignalType = "arm"
	SignalDisarm SignalType = "disarm"
)

// Side is the directional leg a signal or bot operates on.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideBoth  Side = "both"
)

// SignalHeader is the common envelope shared by ArmSignal and DisarmSignal.
type SignalHeader struct {
	Version   string
	Symbol    string
	Timeframe Timeframe
	Ts        int64
}

// Signal is the tagged union consumed by the router.
type Signal interface {
	Kind() SignalType
	Header() SignalHeader
}

// ArmSignal asks an executor to enter a position.
type ArmSignal struct {
	SignalHeader
	Side    Side
	IndTs   int64
	IndHigh decimal.Decimal
	IndLow  decimal.Decimal
	Trigger decimal.Decimal
	Stop    decimal.Decimal
}

func (a ArmSignal) Kind() SignalType     { return SignalArm }
func (a ArmSignal) Header() SignalHeader { return a.SignalHeader }

// SignalID is the idempotency key the router dedups on: <symbol>:<ind_ts>:<side>.
func (a ArmSignal) SignalID() string {
	return fmt.Sprintf("%s:%d:%s", a.Symbol, a.IndTs, a.Side)
}

// DisarmSignal asks any pending work for the previous side to be cancelled.
type DisarmSignal struct {
	SignalHeader
	PrevSide Side
	Reason   string
}

func (d DisarmSignal) Kind() SignalType     { return SignalDisarm }
func (d DisarmSignal) Header() SignalHeader { return d.SignalHeader }

// SignalID is a per-bar key for a DISARM: <symbol>:<ts>:disarm:<prev_side>.
// Unlike ARM, no ind_ts is available on a DISARM, so the bar's own ts
// anchors the key. The router does not dedup DISARM dispatch on it; every
// delivered DISARM is applied.
func (d DisarmSignal) SignalID() string {
	return fmt.Sprintf("%s:%d:disarm:%s", d.Symbol, d.Ts, d.PrevSide)
}

// ToFields renders a Signal as the flat string-map the stream bus stores.
func ToFields(s Signal) map[string]string {
	switch v := s.(type) {
	case ArmSignal:
		return map[string]string{
			"v":        v.Version,
			"type":     string(SignalArm),
			"side":     string(v.Side),
			"sym":      v.Symbol,
			"tf":       string(v.Timeframe),
			"ts":       fmt.Sprintf("%d", v.Ts),
			"ind_ts":   fmt.Sprintf("%d", v.IndTs),
			"ind_high": v.IndHigh.String(),
			"ind_low":  v.IndLow.String(),
			"trigger":  v.Trigger.String(),
			"stop":     v.Stop.String(),
		}
	case DisarmSignal:
		return map[string]string{
			"v":         v.Version,
			"type":      string(SignalDisarm),
			"prev_side": string(v.PrevSide),
			"sym":       v.Symbol,
			"tf":        string(v.Timeframe),
			"ts":        fmt.Sprintf("%d", v.Ts),
			"reason":    v.Reason,
		}
	default:
		return nil
	}
}

// ParseSignal decodes a flat field map into a typed Signal, failing loudly on
// any missing or malformed field rather than returning a partially-zeroed value.
func ParseSignal(fields map[string]string) (Signal, error) {
	typ, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("signal: missing type field")
	}
	sym, ok := fields["sym"]
	if !ok || sym == "" {
		return nil, fmt.Errorf("signal: missing sym field")
	}
	tf, ok := fields["tf"]
	if !ok || tf == "" {
		return nil, fmt.Errorf("signal: missing tf field")
	}
	ts, err := parseInt64(fields, "ts")
	if err != nil {
		return nil, err
	}
	version, ok := fields["v"]
	if !ok || version == "" {
		return nil, fmt.Errorf("signal: missing v field")
	}
	header := SignalHeader{Version: version, Symbol: sym, Timeframe: Timeframe(tf), Ts: ts}

	switch SignalType(typ) {
	case SignalArm:
		side, ok := fields["side"]
		if !ok || (side != string(SideLong) && side != string(SideShort)) {
			return nil, fmt.Errorf("signal: invalid side field %q", side)
		}
		indTs, err := parseInt64(fields, "ind_ts")
		if err != nil {
			return nil, err
		}
		indHigh, err := parseDecimal(fields, "ind_high")
		if err != nil {
			return nil, err
		}
		indLow, err := parseDecimal(fields, "ind_low")
		if err != nil {
			return nil, err
		}
		trigger, err := parseDecimal(fields, "trigger")
		if err != nil {
			return nil, err
		}
		stop, err := parseDecimal(fields, "stop")
		if err != nil {
			return nil, err
		}
		return ArmSignal{
			SignalHeader: header,
			Side:         Side(side),
			IndTs:        indTs,
			IndHigh:      indHigh,
			IndLow:       indLow,
			Trigger:      trigger,
			Stop:         stop,
		}, nil

	case SignalDisarm:
		prevSide, ok := fields["prev_side"]
		if !ok || (prevSide != string(SideLong) && prevSide != string(SideShort)) {
			return nil, fmt.Errorf("signal: invalid prev_side field %q", prevSide)
		}
		reason, ok := fields["reason"]
		if !ok {
			return nil, fmt.Errorf("signal: missing reason field")
		}
		return DisarmSignal{
			SignalHeader: header,
			PrevSide:     Side(prevSide),
			Reason:       reason,
		}, nil

	default:
		return nil, fmt.Errorf("signal: unknown type %q", typ)
	}
}

func parseInt64(fields map[string]string, key string) (int64, error) {
	raw, ok := fields[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("signal: missing %s field", key)
	}
	var v int64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("signal: malformed %s field %q: %w", key, raw, err)
	}
	return v, nil
}

func parseDecimal(fields map[string]string, key string) (decimal.Decimal, error) {
	raw, ok := fields[key]
	if !ok || raw == "" {
		return decimal.Zero, fmt.Errorf("signal: missing %s field", key)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("signal: malformed %s field %q: %w", key, raw, err)
	}
	return d, nil
}
