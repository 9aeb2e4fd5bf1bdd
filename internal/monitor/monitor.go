// Package monitor implements §4.5: the periodic reconciliation loop driving
// the pending → filled → armed → closed/cancelled order-state machine,
// protective-leg recovery after a restart, and the orphan-exit sweep.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/botlock"
	"tradecore/internal/exchangeadapter"
	"tradecore/internal/model"
	"tradecore/internal/notify"
	"tradecore/internal/store"
)

// AdapterFactory resolves the cached exchange adapter for a bot.
type AdapterFactory interface {
	Get(ctx context.Context, bot model.BotConfig) (exchangeadapter.Adapter, error)
}

// Config carries the Monitor's tunables.
type Config struct {
	DefaultTPRMultiple decimal.Decimal
	BotCacheTTL        time.Duration
}

// Monitor is the single shared periodic task described in §4.5.
type Monitor struct {
	orders   store.OrderStateRepository
	bots     store.BotConfigRepository
	adapters AdapterFactory
	notifier notify.Notifier
	locks    *botlock.Table
	cfg      Config

	mu           sync.RWMutex
	botCache     []model.BotConfig
	botCacheAt   time.Time

	posMu     sync.Mutex
	positions map[string]*model.Position // keyed by (bot_id, symbol)
}

// New constructs a Monitor. locks must be the same table the Poller uses so
// a DISARM racing a fill-detection for one bot is serialized.
func New(orders store.OrderStateRepository, bots store.BotConfigRepository, adapters AdapterFactory, notifier notify.Notifier, locks *botlock.Table, cfg Config) *Monitor {
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	return &Monitor{
		orders:    orders,
		bots:      bots,
		adapters:  adapters,
		notifier:  notifier,
		locks:     locks,
		cfg:       cfg,
		positions: make(map[string]*model.Position),
	}
}

func posKey(botID, symbol string) string {
	return botID + "|" + symbol
}

// RunLoop polls every interval until ctx is cancelled.
func (m *Monitor) RunLoop(ctx context.Context, interval time.Duration) {
	m.Reconcile(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// Reconcile runs exactly one poll described in §4.5's five steps.
func (m *Monitor) Reconcile(ctx context.Context) {
	m.refreshBotCache(ctx)

	states, err := m.orders.ListByStatus(ctx, model.StatusPending, model.StatusArmed, model.StatusFilled)
	if err != nil {
		log.Printf("[monitor] list active states: %v", err)
		return
	}
	for _, state := range states {
		m.reconcileOne(ctx, state)
	}

	m.sweepSymbolLevel(ctx)
}

func (m *Monitor) refreshBotCache(ctx context.Context) {
	m.mu.RLock()
	fresh := time.Since(m.botCacheAt) < m.cfg.BotCacheTTL && m.botCache != nil
	m.mu.RUnlock()
	if fresh {
		return
	}
	bots, err := m.bots.All(ctx)
	if err != nil {
		log.Printf("[monitor] refresh bot cache: %v", err)
		return
	}
	m.mu.Lock()
	m.botCache = bots
	m.botCacheAt = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) botByID(botID string) (model.BotConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.botCache {
		if b.ID == botID {
			return b, true
		}
	}
	return model.BotConfig{}, false
}

func (m *Monitor) reconcileOne(ctx context.Context, state model.OrderState) {
	bot, ok := m.botByID(state.BotID)
	if !ok {
		return // bot removed from cache since dispatch; leave state for a later cycle
	}

	release := m.locks.Acquire(bot.ID)
	defer release()

	// re-read after acquiring the lock: a DISARM may have just cancelled it
	current, found, err := m.orders.GetByID(ctx, state.ID)
	if err != nil || !found || current.Status.Terminal() {
		return
	}
	state = current

	adapter, err := m.adapters.Get(ctx, bot)
	if err != nil {
		log.Printf("[monitor] bot=%s adapter: %v", bot.ID, err)
		return
	}

	switch state.Status {
	case model.StatusPending:
		m.reconcilePending(ctx, adapter, bot, state)
	case model.StatusFilled, model.StatusArmed:
		m.reconcileArmed(ctx, adapter, bot, state)
	}
}

func (m *Monitor) reconcilePending(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, state model.OrderState) {
	if state.OrderID == nil {
		return
	}
	result, err := adapter.QueryOrder(ctx, state.Symbol, *state.OrderID)
	if err != nil {
		log.Printf("[monitor] bot=%s query entry %d: %v", bot.ID, *state.OrderID, err)
		return
	}

	if result.ExecutedQty.Sign() > 0 {
		avg := result.AvgPrice
		state.FilledQuantity = result.ExecutedQty
		state.AvgFillPrice = &avg
		state.Status = model.StatusFilled
		state.UpdatedAt = time.Now().UTC()
		if err := m.orders.Update(ctx, state); err != nil {
			log.Printf("[monitor] bot=%s persist filled: %v", bot.ID, err)
			return
		}
		m.openPosition(bot, state, avg, m.tpFor(bot, state, avg))
		state.Status = model.StatusArmed
		if err := m.orders.Update(ctx, state); err != nil {
			log.Printf("[monitor] bot=%s persist armed: %v", bot.ID, err)
		}
		return
	}

	if !result.Status.Open() {
		state.Status = model.StatusCancelled
		state.UpdatedAt = time.Now().UTC()
		if err := m.orders.Update(ctx, state); err != nil {
			log.Printf("[monitor] bot=%s persist cancelled: %v", bot.ID, err)
			return
		}
		notify.AlertTerminal(m.notifier, bot.ID, state.Symbol, string(state.Status), "entry never filled")
	}
}

func (m *Monitor) tpFor(bot model.BotConfig, state model.OrderState, entryPrice decimal.Decimal) decimal.Decimal {
	r := bot.TakeProfitRMultiple
	if r.Sign() <= 0 {
		r = m.cfg.DefaultTPRMultiple
	}
	risk := entryPrice.Sub(state.StopPrice).Abs()
	if state.Side == model.SideLong {
		return entryPrice.Add(risk.Mul(r))
	}
	return entryPrice.Sub(risk.Mul(r))
}

func (m *Monitor) openPosition(bot model.BotConfig, state model.OrderState, entryPrice, takeProfit decimal.Decimal) {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	m.positions[posKey(bot.ID, state.Symbol)] = &model.Position{
		BotID: bot.ID, Symbol: state.Symbol, Side: state.Side,
		EntryPrice: entryPrice, Quantity: state.FilledQuantity,
		StopLoss: state.StopPrice, TakeProfit: takeProfit, OpenedAt: time.Now().UTC(),
	}
}

func (m *Monitor) position(botID, symbol string) (*model.Position, bool) {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	p, ok := m.positions[posKey(botID, symbol)]
	return p, ok
}

func (m *Monitor) dropPosition(botID, symbol string) {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	delete(m.positions, posKey(botID, symbol))
}

func (m *Monitor) reconcileArmed(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, state model.OrderState) {
	pos, ok := m.position(bot.ID, state.Symbol)
	if !ok {
		pos = m.rehydratePosition(ctx, adapter, bot, state)
		if pos == nil {
			return
		}
	}

	exPos, err := adapter.PositionRisk(ctx, state.Symbol)
	if err != nil {
		log.Printf("[monitor] bot=%s position risk: %v", bot.ID, err)
		return
	}
	if !exPos.Open() {
		m.closeExternally(ctx, adapter, bot, state)
		return
	}

	if state.TakeProfitOrderID != nil {
		if tp, err := adapter.QueryOrder(ctx, state.Symbol, *state.TakeProfitOrderID); err == nil && tp.Status == exchangeadapter.OrderFilled {
			m.closeFilled(ctx, adapter, bot, state, state.StopOrderID, "take_profit")
			return
		}
	}
	if state.StopOrderID != nil {
		if sl, err := adapter.QueryOrder(ctx, state.Symbol, *state.StopOrderID); err == nil && sl.Status == exchangeadapter.OrderFilled {
			m.closeFilled(ctx, adapter, bot, state, state.TakeProfitOrderID, "stop_loss")
			return
		}
	}
}

func (m *Monitor) closeFilled(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, state model.OrderState, opposingLeg *int64, reason string) {
	if opposingLeg != nil {
		if err := adapter.CancelOrder(ctx, state.Symbol, *opposingLeg); err != nil && exchangeadapter.Classify(err) != exchangeadapter.KindOrderNotFound {
			log.Printf("[monitor] bot=%s cancel opposing leg %d: %v", bot.ID, *opposingLeg, err)
		}
	}
	state.Status = model.StatusClosed
	state.UpdatedAt = time.Now().UTC()
	if err := m.orders.Update(ctx, state); err != nil {
		log.Printf("[monitor] bot=%s persist closed: %v", bot.ID, err)
		return
	}
	m.dropPosition(bot.ID, state.Symbol)
	notify.AlertTerminal(m.notifier, bot.ID, state.Symbol, string(state.Status), reason)
}

func (m *Monitor) closeExternally(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, state model.OrderState) {
	for _, id := range []*int64{state.StopOrderID, state.TakeProfitOrderID} {
		if id == nil {
			continue
		}
		if err := adapter.CancelOrder(ctx, state.Symbol, *id); err != nil && exchangeadapter.Classify(err) != exchangeadapter.KindOrderNotFound {
			log.Printf("[monitor] bot=%s cancel remaining leg %d: %v", bot.ID, *id, err)
		}
	}
	state.Status = model.StatusCancelled
	state.UpdatedAt = time.Now().UTC()
	if err := m.orders.Update(ctx, state); err != nil {
		log.Printf("[monitor] bot=%s persist externally-closed: %v", bot.ID, err)
		return
	}
	m.dropPosition(bot.ID, state.Symbol)
	notify.AlertTerminal(m.notifier, bot.ID, state.Symbol, string(state.Status), "position closed externally")
}

// rehydratePosition recovers a missing in-memory Position after a restart,
// re-placing whichever protective leg is absent, per §4.5's recovery section.
func (m *Monitor) rehydratePosition(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, state model.OrderState) *model.Position {
	exPos, err := adapter.PositionRisk(ctx, state.Symbol)
	if err != nil {
		log.Printf("[monitor] bot=%s rehydrate position risk: %v", bot.ID, err)
		return nil
	}
	if !exPos.Open() {
		m.closeExternally(ctx, adapter, bot, state)
		return nil
	}

	entry := exPos.EntryPrice
	tp := m.tpFor(bot, state, entry)
	m.openPosition(bot, state, entry, tp)

	missingStop := state.StopOrderID == nil
	missingTP := state.TakeProfitOrderID == nil
	if !missingStop && !missingTP {
		p, _ := m.position(bot.ID, state.Symbol)
		return p
	}

	exitSide := exchangeadapter.SideSell
	if state.Side == model.SideShort {
		exitSide = exchangeadapter.SideBuy
	}
	prefix := bot.ClientPrefix()

	if missingStop {
		clientID := fmt.Sprintf("%s-sl-%d", prefix, time.Now().UnixNano()%1_000_000)
		result, err := adapter.PlaceStopMarketOrder(ctx, state.Symbol, exitSide, exPos.PositionAmt.Abs(), state.StopPrice, clientID)
		if err != nil {
			m.failsafeClose(ctx, adapter, bot, state, exitSide, exPos.PositionAmt.Abs(), err)
			return nil
		}
		id := result.OrderID
		state.StopOrderID = &id
	}
	if missingTP {
		clientID := fmt.Sprintf("%s-tp-%d", prefix, time.Now().UnixNano()%1_000_000)
		result, err := adapter.PlaceTakeProfitLimitOrder(ctx, state.Symbol, exitSide, exPos.PositionAmt.Abs(), tp, tp, clientID)
		if err != nil {
			m.failsafeClose(ctx, adapter, bot, state, exitSide, exPos.PositionAmt.Abs(), err)
			return nil
		}
		id := result.OrderID
		state.TakeProfitOrderID = &id
	}
	state.Status = model.StatusArmed
	state.UpdatedAt = time.Now().UTC()
	if err := m.orders.Update(ctx, state); err != nil {
		log.Printf("[monitor] bot=%s persist recovered legs: %v", bot.ID, err)
	}
	p, _ := m.position(bot.ID, state.Symbol)
	return p
}

// failsafeClose market-closes a position when re-placing a missing
// protective leg (stop or take-profit) fails with any error, such as a stop
// that would immediately trigger (§4.5's restart-recovery failsafe).
func (m *Monitor) failsafeClose(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, state model.OrderState, exitSide exchangeadapter.OrderSide, qty decimal.Decimal, cause error) {
	log.Printf("[monitor] bot=%s failsafe market close after re-place failure: %v", bot.ID, cause)
	prefix := bot.ClientPrefix()
	clientID := fmt.Sprintf("%s-fsc-%d", prefix, time.Now().UnixNano()%1_000_000)
	if _, err := adapter.PlaceMarketOrder(ctx, state.Symbol, exitSide, qty, true, clientID); err != nil {
		log.Printf("[monitor] bot=%s failsafe market close failed: %v", bot.ID, err)
	}
	state.Status = model.StatusCancelled
	state.UpdatedAt = time.Now().UTC()
	if err := m.orders.Update(ctx, state); err != nil {
		log.Printf("[monitor] bot=%s persist failsafe-closed: %v", bot.ID, err)
		return
	}
	m.dropPosition(bot.ID, state.Symbol)
	notify.AlertTerminal(m.notifier, bot.ID, state.Symbol, string(state.Status), "failsafe market close: "+cause.Error())
}

// sweepSymbolLevel implements §4.5 step 5. There is no separate step-4 pass
// over terminal states: exit legs a terminal state left open on the exchange
// (for example the stop and take-profit of an entry that reconcilePending
// marked cancelled unfilled) are not cancelled by id, only caught here by
// client-id prefix. For every cached bot with no active state, cancel any
// exchange-open order still tagged with its client-id prefix when the bot
// holds no open position.
func (m *Monitor) sweepSymbolLevel(ctx context.Context) {
	m.mu.RLock()
	bots := make([]model.BotConfig, len(m.botCache))
	copy(bots, m.botCache)
	m.mu.RUnlock()

	for _, bot := range bots {
		active, err := m.orders.ListActiveForBot(ctx, bot.ID)
		if err != nil {
			continue
		}
		if len(active) > 0 {
			continue
		}
		m.sweepBot(ctx, bot)
	}
}

func (m *Monitor) sweepBot(ctx context.Context, bot model.BotConfig) {
	adapter, err := m.adapters.Get(ctx, bot)
	if err != nil {
		return
	}
	open, err := adapter.ListOpenOrders(ctx, bot.Symbol)
	if err != nil {
		return
	}
	prefix := bot.ClientPrefix()
	var tagged []exchangeadapter.OrderResult
	for _, o := range open {
		if len(o.ClientOrderID) >= len(prefix) && o.ClientOrderID[:len(prefix)] == prefix {
			tagged = append(tagged, o)
		}
	}
	if len(tagged) == 0 {
		return
	}
	pos, err := adapter.PositionRisk(ctx, bot.Symbol)
	if err != nil || pos.Open() {
		return
	}
	for _, o := range tagged {
		if err := adapter.CancelOrder(ctx, bot.Symbol, o.OrderID); err != nil && exchangeadapter.Classify(err) != exchangeadapter.KindOrderNotFound {
			log.Printf("[monitor] bot=%s orphan sweep cancel %d: %v", bot.ID, o.OrderID, err)
		}
	}
}
