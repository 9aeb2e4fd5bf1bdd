package model

import "testing"

func validArmFields() map[string]string {
	return map[string]string{
		"v": "1", "type": "arm", "side": "long", "sym": "BTCUSDT", "tf": "2m",
		"ts": "1000", "ind_ts": "900", "ind_high": "105.1", "ind_low": "94.9",
		"trigger": "105.1", "stop": "94.9",
	}
}

func TestParseSignal_ValidArm(t *testing.T) {
	sig, err := ParseSignal(validArmFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arm, ok := sig.(ArmSignal)
	if !ok {
		t.Fatalf("expected ArmSignal, got %T", sig)
	}
	if arm.Side != SideLong || arm.Symbol != "BTCUSDT" {
		t.Errorf("unexpected arm fields: %+v", arm)
	}
}

func TestParseSignal_MissingRequiredFieldFailsLoudly(t *testing.T) {
	for _, missing := range []string{"type", "sym", "tf", "ts", "side", "ind_ts", "ind_high", "ind_low", "trigger", "stop"} {
		fields := validArmFields()
		delete(fields, missing)
		if _, err := ParseSignal(fields); err == nil {
			t.Errorf("missing %q: expected an error, got none", missing)
		}
	}
}

func TestParseSignal_InvalidSideRejected(t *testing.T) {
	fields := validArmFields()
	fields["side"] = "sideways"
	if _, err := ParseSignal(fields); err == nil {
		t.Error("expected an error for an invalid side value")
	}
}

func TestParseSignal_MalformedDecimalRejected(t *testing.T) {
	fields := validArmFields()
	fields["trigger"] = "not-a-number"
	if _, err := ParseSignal(fields); err == nil {
		t.Error("expected an error for a malformed decimal field")
	}
}

func TestParseSignal_UnknownTypeRejected(t *testing.T) {
	fields := validArmFields()
	fields["type"] = "nonsense"
	if _, err := ParseSignal(fields); err == nil {
		t.Error("expected an error for an unknown signal type")
	}
}

func TestParseSignal_ValidDisarm(t *testing.T) {
	fields := map[string]string{
		"v": "1", "type": "disarm", "prev_side": "short", "sym": "ETHUSDT", "tf": "2m",
		"ts": "2000", "reason": "regime:short->neutral",
	}
	sig, err := ParseSignal(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	disarm, ok := sig.(DisarmSignal)
	if !ok {
		t.Fatalf("expected DisarmSignal, got %T", sig)
	}
	if disarm.PrevSide != SideShort {
		t.Errorf("prev_side = %s, want short", disarm.PrevSide)
	}
}

func TestArmSignal_SignalIDIsStableAndDistinguishesSide(t *testing.T) {
	base := validArmFields()
	longSig, _ := ParseSignal(base)
	again, _ := ParseSignal(base)
	if longSig.(ArmSignal).SignalID() != again.(ArmSignal).SignalID() {
		t.Error("ARM signal id must be the same for identical fields")
	}

	base["side"] = "short"
	shortSig, _ := ParseSignal(base)

	if longSig.(ArmSignal).SignalID() == shortSig.(ArmSignal).SignalID() {
		t.Error("ARM signal ids for different sides at the same ind_ts must differ")
	}
}

func TestDisarmSignal_SignalIDIncludesPrevSide(t *testing.T) {
	d1 := DisarmSignal{SignalHeader: SignalHeader{Symbol: "BTCUSDT", Ts: 1000}, PrevSide: SideLong}
	d2 := DisarmSignal{SignalHeader: SignalHeader{Symbol: "BTCUSDT", Ts: 1000}, PrevSide: SideShort}
	if d1.SignalID() == d2.SignalID() {
		t.Error("DISARM signal ids for different prev_side at the same ts must differ")
	}
}
