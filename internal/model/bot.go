package model

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/shopspring/decimal"
)

// Environment selects which exchange venue a bot's credential targets.
type Environment string

const (
	EnvTestnet Environment = "testnet"
	EnvProd    Environment = "prod"
)

// SizingMode selects how an executor computes target notional for a bot.
type SizingMode string

const (
	SizingFixedNotional SizingMode = "fixed_notional"
	SizingBalancePct    SizingMode = "use_balance_pct"
)

// BotConfig is the persistent, user-owned configuration the router and
// executor read. It is owned by an external admin path — the core never
// writes it.
type BotConfig struct {
	ID                 string
	OwnerID            string
	CredentialID       string
	Symbol             string
	Timeframe          Timeframe
	Enabled            bool
	Environment        Environment
	SideWhitelist      Side
	Leverage           int
	SizingMode         SizingMode
	BalancePct         decimal.Decimal
	FixedNotional      decimal.Decimal
	MaxPositionUSDT     decimal.Decimal
	TakeProfitRMultiple decimal.Decimal
}

// Active reports whether the bot is eligible for dispatch at all.
func (b BotConfig) Active() bool {
	return b.Enabled
}

// AcceptsSide reports whether an ARM signal on the given side should dispatch
// to this bot.
func (b BotConfig) AcceptsSide(side Side) bool {
	return b.SideWhitelist == SideBoth || b.SideWhitelist == side
}

// ClientPrefix derives the compact `b<20 hex chars>` exit-order client-id
// prefix from the bot id, so the Monitor can sweep orphaned exits by prefix
// even when OrderState rows are lost.
func (b BotConfig) ClientPrefix() string {
	sum := sha1.Sum([]byte(b.ID))
	return "b" + hex.EncodeToString(sum[:])[:20]
}
