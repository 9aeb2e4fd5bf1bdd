package executor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/exchangeadapter"
	"tradecore/internal/model"
)

// balanceCache TTLs the available-balance read per (credential,
// environment) (§5, default 30s), so concurrent bots sharing a credential
// don't each round-trip the exchange.
type balanceCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]balanceEntry
}

type balanceEntry struct {
	value     decimal.Decimal
	fetchedAt time.Time
}

func newBalanceCache(ttl time.Duration) *balanceCache {
	return &balanceCache{ttl: ttl, entries: make(map[string]balanceEntry)}
}

func (c *balanceCache) get(ctx context.Context, bot model.BotConfig, adapter exchangeadapter.Adapter) (decimal.Decimal, error) {
	key := bot.CredentialID + ":" + string(bot.Environment)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Since(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	balance, err := adapter.AvailableBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.entries[key] = balanceEntry{value: balance, fetchedAt: time.Now()}
	c.mu.Unlock()

	return balance, nil
}
