// Package exchangeclient owns the per-(credential, environment) exchange
// adapter cache described in §5: exactly one constructor runs at a time per
// key, and constructed adapters are reused for the process lifetime.
package exchangeclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tradecore/internal/decimalx"
	"tradecore/internal/exchangeadapter"
	"tradecore/internal/model"
)

// CredentialResolver resolves a bot's opaque credential id into the
// already-decrypted API key/secret pair. Decryption at rest is an external
// concern (§1); the core only consumes the result.
type CredentialResolver interface {
	Resolve(ctx context.Context, credentialID string) (apiKey, apiSecret string, err error)
}

// Factory builds and caches exchangeadapter.Adapter values per
// (credential, environment). DryRun, when set, bypasses credential
// resolution entirely and hands back a shared DryRunAdapter.
type Factory struct {
	resolver CredentialResolver
	dryRun   bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]exchangeadapter.Adapter

	dryRunAdapter exchangeadapter.Adapter
}

// NewFactory returns a Factory. When dryRun is true, Get always returns the
// same DryRunAdapter regardless of credential/environment.
func NewFactory(resolver CredentialResolver, dryRun bool) *Factory {
	f := &Factory{
		resolver: resolver,
		dryRun:   dryRun,
		locks:    make(map[string]*sync.Mutex),
		cache:    make(map[string]exchangeadapter.Adapter),
	}
	if dryRun {
		f.dryRunAdapter = exchangeadapter.NewDryRunAdapter(
			decimal.NewFromInt(100000), decimal.Zero,
			decimalx.SymbolFilters{
				StepSize:    decimal.NewFromFloat(0.001),
				MinQty:      decimal.NewFromFloat(0.001),
				MaxQty:      decimal.NewFromInt(1000),
				TickSize:    decimal.NewFromFloat(0.1),
				MinPrice:    decimal.NewFromFloat(0.1),
				MaxPrice:    decimal.NewFromInt(1000000),
				MinNotional: decimal.NewFromInt(5),
			},
		)
	}
	return f
}

func cacheKey(credentialID string, env model.Environment) string {
	return credentialID + ":" + string(env)
}

// Get returns the cached adapter for bot's (credential, environment),
// constructing it if absent. Only one goroutine constructs a given key at a
// time; others block on that key's lock and then observe the cached result.
func (f *Factory) Get(ctx context.Context, bot model.BotConfig) (exchangeadapter.Adapter, error) {
	if f.dryRun {
		return f.dryRunAdapter, nil
	}

	key := cacheKey(bot.CredentialID, bot.Environment)

	f.mu.Lock()
	if a, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return a, nil
	}
	lock, ok := f.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[key] = lock
	}
	f.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	f.mu.Lock()
	if a, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return a, nil
	}
	f.mu.Unlock()

	apiKey, apiSecret, err := f.resolver.Resolve(ctx, bot.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("exchangeclient: resolve credential %s: %w", bot.CredentialID, err)
	}

	if bot.Environment == model.EnvTestnet {
		futures.UseTestnet = true
	} else {
		futures.UseTestnet = false
	}
	client := binance.NewFuturesClient(apiKey, apiSecret)
	adapter := exchangeadapter.NewBinanceAdapter(client)

	f.mu.Lock()
	f.cache[key] = adapter
	f.mu.Unlock()

	return adapter, nil
}
