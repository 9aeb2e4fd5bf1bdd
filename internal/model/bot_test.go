package model

import "testing"

func TestBotConfig_AcceptsSide(t *testing.T) {
	cases := []struct {
		name      string
		whitelist Side
		incoming  Side
		want      bool
	}{
		{"both accepts long", SideBoth, SideLong, true},
		{"both accepts short", SideBoth, SideShort, true},
		{"long-only rejects short", SideLong, SideShort, false},
		{"long-only accepts long", SideLong, SideLong, true},
		{"short-only rejects long", SideShort, SideLong, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bot := BotConfig{SideWhitelist: c.whitelist}
			if got := bot.AcceptsSide(c.incoming); got != c.want {
				t.Errorf("AcceptsSide(%s) with whitelist %s = %v, want %v", c.incoming, c.whitelist, got, c.want)
			}
		})
	}
}

func TestBotConfig_Active(t *testing.T) {
	if (BotConfig{Enabled: false}).Active() {
		t.Error("disabled bot must report Active() == false")
	}
	if !(BotConfig{Enabled: true}).Active() {
		t.Error("enabled bot must report Active() == true")
	}
}

func TestBotConfig_ClientPrefixIsDeterministicAndDistinctPerBot(t *testing.T) {
	a := BotConfig{ID: "bot-1"}
	b := BotConfig{ID: "bot-2"}

	p1 := a.ClientPrefix()
	p2 := a.ClientPrefix()
	if p1 != p2 {
		t.Errorf("ClientPrefix must be deterministic for the same bot id: %s != %s", p1, p2)
	}
	if p1[0] != 'b' {
		t.Errorf("prefix must start with 'b', got %q", p1)
	}
	if len(p1) != 21 {
		t.Errorf("prefix length = %d, want 21 (b + 20 hex chars)", len(p1))
	}
	if p1 == b.ClientPrefix() {
		t.Error("distinct bot ids must not collide into the same client prefix")
	}
}
