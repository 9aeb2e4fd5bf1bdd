// Package router implements §4.3: per-(symbol, timeframe) consumption of the
// signal stream, bot resolution, side/whitelist filtering, idempotent
// dispatch to the Executor, and DISARM cancellation.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradecore/internal/botlock"
	goredis "github.com/go-redis/redis/v8"

	"tradecore/internal/exchangeadapter"
	"tradecore/internal/executor"
	"tradecore/internal/model"
	"tradecore/internal/store"
	"tradecore/internal/streambus"
)

const dispatchLedgerTTL = 24 * time.Hour

// Config carries one Poller's scope and tunables.
type Config struct {
	Symbol          string
	Timeframe       model.Timeframe
	Group           string
	Consumer        string
	RefreshInterval time.Duration
	BlockTimeout    time.Duration
	ReclaimIdle     time.Duration
}

// Poller is the per-(symbol, timeframe) consumer described in §4.3.
type Poller struct {
	bus      *streambus.Bus
	bots     store.BotConfigRepository
	orders   store.OrderStateRepository
	exec     *executor.Executor
	locks    *botlock.Table
	cfg      Config

	mu       sync.RWMutex
	cache    []model.BotConfig
}

// New constructs a Poller. locks must be shared with the Monitor servicing
// the same bots, so per-bot mutations serialize across both components.
func New(bus *streambus.Bus, bots store.BotConfigRepository, orders store.OrderStateRepository, exec *executor.Executor, locks *botlock.Table, cfg Config) *Poller {
	return &Poller{bus: bus, bots: bots, orders: orders, exec: exec, locks: locks, cfg: cfg}
}

// RefreshLoop periodically reloads the bot cache until ctx is cancelled.
func (p *Poller) RefreshLoop(ctx context.Context) {
	p.refresh(ctx)
	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	ids, err := p.bus.BotIndex(ctx, p.cfg.Symbol)
	if err != nil {
		log.Printf("[poller:%s] bot index refresh: %v", p.cfg.Symbol, err)
		return
	}
	bots := make([]model.BotConfig, 0, len(ids))
	for _, id := range ids {
		b, ok, err := p.bots.Get(ctx, id)
		if err != nil {
			log.Printf("[poller:%s] bot lookup %s: %v", p.cfg.Symbol, id, err)
			continue
		}
		if ok {
			bots = append(bots, b)
		}
	}
	p.mu.Lock()
	p.cache = bots
	p.mu.Unlock()
}

func (p *Poller) candidates() []model.BotConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.BotConfig, len(p.cache))
	copy(out, p.cache)
	return out
}

// Run tails the signal stream via a consumer group until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	key := streambus.SignalStreamKey(p.cfg.Symbol, string(p.cfg.Timeframe))
	if err := p.bus.EnsureGroup(ctx, key, p.cfg.Group, "$"); err != nil {
		return fmt.Errorf("poller: ensure group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.reclaimStale(ctx, key)

		streams, err := p.bus.ReadGroup(ctx, p.cfg.Group, p.cfg.Consumer, []string{key}, 50, p.cfg.BlockTimeout)
		if err != nil {
			log.Printf("[poller:%s] read error: %v", p.cfg.Symbol, err)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Values {
				p.handle(ctx, key, msg)
			}
		}
	}
}

// reclaimStale claims pending entries idle beyond ReclaimIdle onto this
// consumer, so a crashed sibling worker's in-flight entries aren't
// stranded (§4.3 "pending-entry recovery").
func (p *Poller) reclaimStale(ctx context.Context, key string) {
	if p.cfg.ReclaimIdle <= 0 {
		return
	}
	stale, err := p.bus.PendingStale(ctx, key, p.cfg.Group, p.cfg.ReclaimIdle, 50)
	if err != nil || len(stale) == 0 {
		return
	}
	ids := make([]string, len(stale))
	for i, s := range stale {
		ids[i] = s.ID
	}
	msgs, err := p.bus.Claim(ctx, key, p.cfg.Group, p.cfg.Consumer, p.cfg.ReclaimIdle, ids)
	if err != nil {
		log.Printf("[poller:%s] reclaim: %v", p.cfg.Symbol, err)
		return
	}
	for _, msg := range msgs {
		p.handle(ctx, key, msg)
	}
}

func (p *Poller) handle(ctx context.Context, streamKey string, msg goredis.XMessage) {
	fields := toStringFields(msg.Values)
	sig, err := model.ParseSignal(fields)
	if err != nil {
		// invalid_signal (§7): drop and log, do not ack, so a fix can replay.
		log.Printf("[poller:%s] invalid signal %s: %v", p.cfg.Symbol, msg.ID, err)
		return
	}

	header := sig.Header()
	if header.Symbol != p.cfg.Symbol || header.Timeframe != p.cfg.Timeframe {
		p.bus.Ack(ctx, streamKey, p.cfg.Group, msg.ID)
		return
	}

	infra := false
	for _, bot := range p.candidates() {
		if err := p.dispatchOne(ctx, bot, sig); err != nil {
			log.Printf("[poller:%s] bot=%s dispatch infra error: %v", p.cfg.Symbol, bot.ID, err)
			infra = true
		}
	}
	if infra {
		return // leave unacknowledged for redelivery
	}
	p.bus.Ack(ctx, streamKey, p.cfg.Group, msg.ID)
}

func (p *Poller) dispatchOne(ctx context.Context, bot model.BotConfig, sig model.Signal) error {
	if !bot.Active() {
		return nil
	}

	switch v := sig.(type) {
	case model.ArmSignal:
		if !bot.AcceptsSide(v.Side) {
			return nil
		}
		return p.dispatchArm(ctx, bot, v)
	case model.DisarmSignal:
		return p.dispatchDisarm(ctx, bot, v)
	default:
		return nil
	}
}

func (p *Poller) dispatchArm(ctx context.Context, bot model.BotConfig, sig model.ArmSignal) error {
	ledgerKey := fmt.Sprintf("idem:%s:%s", bot.ID, sig.SignalID())
	won, err := p.bus.FirstWriterWins(ctx, ledgerKey, dispatchLedgerTTL)
	if err != nil {
		return err
	}
	if !won {
		return nil // already dispatched; skip and ack
	}

	release := p.locks.Acquire(bot.ID)
	defer release()

	state, err := p.exec.PlaceTrio(ctx, bot, sig)
	if err != nil {
		// Placement failed (including a retryable infra error the caller will
		// leave unacked for redelivery): give up the claim so a later retry of
		// this same signal is not silently swallowed by won=false.
		if releaseErr := p.bus.ReleaseLedger(ctx, ledgerKey); releaseErr != nil {
			log.Printf("[poller:%s] bot=%s release ledger %s: %v", p.cfg.Symbol, bot.ID, ledgerKey, releaseErr)
		}
		return err
	}
	if err := p.orders.Create(ctx, state); err != nil {
		log.Printf("[poller:%s] bot=%s persist order state: %v", p.cfg.Symbol, bot.ID, err)
	}
	return nil
}

func (p *Poller) dispatchDisarm(ctx context.Context, bot model.BotConfig, sig model.DisarmSignal) error {
	release := p.locks.Acquire(bot.ID)
	defer release()

	active, err := p.orders.ListActiveForBot(ctx, bot.ID)
	if err != nil {
		return err
	}
	for _, state := range active {
		if state.Symbol != sig.Symbol || state.Side != sig.PrevSide || state.Status != model.StatusPending {
			continue
		}
		cancelled, err := p.exec.CancelPendingEntry(ctx, bot, state)
		if err != nil {
			if exchangeadapter.Classify(err) == exchangeadapter.KindOrderNotFound {
				continue
			}
			return err
		}
		if err := p.orders.Update(ctx, cancelled); err != nil {
			log.Printf("[poller:%s] bot=%s update cancelled state: %v", p.cfg.Symbol, bot.ID, err)
		}
	}
	return nil
}

func toStringFields(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
