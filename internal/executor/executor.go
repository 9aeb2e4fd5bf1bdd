// Package executor implements §4.4: decimal-exact sizing, pre-trade safety
// gates, and atomic-with-rollback placement of the entry/stop/take-profit
// order trio.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/exchangeadapter"
	"tradecore/internal/model"
	"tradecore/internal/notify"
)

// AdapterFactory resolves the cached exchange adapter for a bot's
// (credential, environment). Implemented by exchangeclient.Factory; kept as
// an interface here so tests can substitute a fixed adapter.
type AdapterFactory interface {
	Get(ctx context.Context, bot model.BotConfig) (exchangeadapter.Adapter, error)
}

// Config carries the executor's tunables.
type Config struct {
	Retry              RetryPolicy
	BalanceTTL         time.Duration
	DefaultTPRMultiple decimal.Decimal
	DefaultLeverage    int
}

// Executor sizes, quantizes, and places order trios for ARM signals.
type Executor struct {
	adapters AdapterFactory
	notifier notify.Notifier
	balances *balanceCache
	cfg      Config
}

// New constructs an Executor against the given adapter factory.
func New(adapters AdapterFactory, notifier notify.Notifier, cfg Config) *Executor {
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	return &Executor{
		adapters: adapters,
		notifier: notifier,
		balances: newBalanceCache(cfg.BalanceTTL),
		cfg:      cfg,
	}
}

func newState(bot model.BotConfig, sig model.ArmSignal, status model.OrderStatus) model.OrderState {
	now := time.Now().UTC()
	return model.OrderState{
		ID:           uuid.NewString(),
		BotID:        bot.ID,
		SignalID:     sig.SignalID(),
		Status:       status,
		Side:         sig.Side,
		Symbol:       sig.Symbol,
		TriggerPrice: sig.Trigger,
		StopPrice:    sig.Stop,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// PlaceTrio runs the full §4.4 pipeline and returns the resulting
// OrderState. It never returns an error for domain-level rejections
// (bad_request, insufficient_balance) — those are encoded in the returned
// state's Status. It returns an error only for infrastructure failures the
// caller (the Poller) should treat as retryable via redelivery.
func (e *Executor) PlaceTrio(ctx context.Context, bot model.BotConfig, sig model.ArmSignal) (model.OrderState, error) {
	adapter, err := e.adapters.Get(ctx, bot)
	if err != nil {
		if exchangeadapter.Classify(err) == exchangeadapter.KindAuth {
			notify.AlertAuthFailure(e.notifier, bot.ID, sig.Symbol, err)
			return failedState(bot, sig, err), nil
		}
		return model.OrderState{}, err
	}

	balance, err := e.balances.get(ctx, bot, adapter)
	if err != nil {
		return e.classifyInfraOrFail(bot, sig, err)
	}

	filters, err := adapter.SymbolFilters(ctx, sig.Symbol)
	if err != nil {
		return e.classifyInfraOrFail(bot, sig, err)
	}

	sizing := ComputeSizing(bot, sig, balance, filters)
	if sizing.Skip == SkipLowBalance {
		s := newState(bot, sig, model.StatusSkippedLowBalance)
		log.Printf("[executor:%s] bot=%s skipped_low_balance: %s", sig.Symbol, bot.ID, sizing.Detail)
		return s, nil
	}
	if sizing.Skip == SkipBadRequest {
		log.Printf("[executor:%s] bot=%s bad_request: %s", sig.Symbol, bot.ID, sizing.Detail)
		return failedState(bot, sig, fmt.Errorf("bad_request: %s", sizing.Detail)), nil
	}

	mark, err := adapter.MarkPrice(ctx, sig.Symbol)
	if err != nil {
		return e.classifyInfraOrFail(bot, sig, err)
	}
	if violation := SafetyGateViolation(sizing.Price, sig.Stop, mark, sig.Side); violation != "" {
		log.Printf("[executor:%s] bot=%s safety gate rejected: %s", sig.Symbol, bot.ID, violation)
		return failedState(bot, sig, fmt.Errorf("bad_request: %s", violation)), nil
	}

	if err := e.cancelStaleExits(ctx, adapter, bot, sig.Symbol); err != nil {
		return e.classifyInfraOrFail(bot, sig, err)
	}

	leverage := bot.Leverage
	if leverage <= 0 {
		leverage = e.cfg.DefaultLeverage
	}
	if _, err := retry(ctx, e.cfg.Retry, func() (struct{}, error) {
		return struct{}{}, adapter.SetLeverage(ctx, sig.Symbol, leverage)
	}); err != nil {
		return e.classifyInfraOrFail(bot, sig, err)
	}

	return e.placeTrioOrders(ctx, adapter, bot, sig, sizing)
}

// cancelStaleExits cancels any exchange-open orders tagged with this bot's
// client-id prefix — stale exits left over from a prior run (§4.4
// "Exchange preparation").
func (e *Executor) cancelStaleExits(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, symbol string) error {
	open, err := adapter.ListOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	prefix := bot.ClientPrefix()
	for _, o := range open {
		if len(o.ClientOrderID) >= len(prefix) && o.ClientOrderID[:len(prefix)] == prefix {
			if err := adapter.CancelOrder(ctx, symbol, o.OrderID); err != nil && exchangeadapter.Classify(err) != exchangeadapter.KindOrderNotFound {
				return err
			}
		}
	}
	return nil
}

func (e *Executor) placeTrioOrders(ctx context.Context, adapter exchangeadapter.Adapter, bot model.BotConfig, sig model.ArmSignal, sizing Sizing) (model.OrderState, error) {
	entrySide, exitSide := sidesFor(sig.Side)
	prefix := bot.ClientPrefix()

	entryClientID := fmt.Sprintf("%s-entry-%s", prefix, shortNonce())
	entry, err := retry(ctx, e.cfg.Retry, func() (exchangeadapter.OrderResult, error) {
		return adapter.PlaceLimitOrder(ctx, sig.Symbol, entrySide, sizing.Qty, sizing.Price, false, entryClientID)
	})
	if err != nil {
		return e.classifyInfraOrFail(bot, sig, err)
	}

	slClientID := fmt.Sprintf("%s-sl-%s", prefix, shortNonce())
	stopOrder, err := retry(ctx, e.cfg.Retry, func() (exchangeadapter.OrderResult, error) {
		return adapter.PlaceStopMarketOrder(ctx, sig.Symbol, exitSide, sizing.Qty, sig.Stop, slClientID)
	})
	if err != nil {
		e.cancelBestEffort(ctx, adapter, sig.Symbol, entry.OrderID)
		log.Printf("[executor:%s] bot=%s stop placement failed, entry %d rolled back: %v", sig.Symbol, bot.ID, entry.OrderID, err)
		return failedState(bot, sig, err), nil
	}

	tpRMultiple := bot.TakeProfitRMultiple
	if tpRMultiple.Sign() <= 0 {
		tpRMultiple = e.cfg.DefaultTPRMultiple
	}
	tpPrice := TakeProfitPrice(sizing.Price, sig.Stop, tpRMultiple, sig.Side)

	tpClientID := fmt.Sprintf("%s-tp-%s", prefix, shortNonce())
	tpOrder, err := retry(ctx, e.cfg.Retry, func() (exchangeadapter.OrderResult, error) {
		return adapter.PlaceTakeProfitLimitOrder(ctx, sig.Symbol, exitSide, sizing.Qty, tpPrice, tpPrice, tpClientID)
	})
	if err != nil {
		e.cancelBestEffort(ctx, adapter, sig.Symbol, stopOrder.OrderID)
		e.cancelBestEffort(ctx, adapter, sig.Symbol, entry.OrderID)
		log.Printf("[executor:%s] bot=%s tp placement failed, stop %d and entry %d rolled back: %v", sig.Symbol, bot.ID, stopOrder.OrderID, entry.OrderID, err)
		return failedState(bot, sig, err), nil
	}

	state := newState(bot, sig, model.StatusPending)
	state.Quantity = sizing.Qty
	state.TriggerPrice = sizing.Price
	orderID, stopID, tpID := entry.OrderID, stopOrder.OrderID, tpOrder.OrderID
	state.OrderID = &orderID
	state.StopOrderID = &stopID
	state.TakeProfitOrderID = &tpID
	return state, nil
}

// CancelPendingEntry implements the DISARM handler's cancellation of
// pending work for a bot/side (§4.3 step 4): it cancels the entry (and any
// exit legs already placed) for an order state that has not yet filled, and
// returns the state transitioned to cancelled.
func (e *Executor) CancelPendingEntry(ctx context.Context, bot model.BotConfig, state model.OrderState) (model.OrderState, error) {
	adapter, err := e.adapters.Get(ctx, bot)
	if err != nil {
		return model.OrderState{}, err
	}
	for _, id := range []*int64{state.OrderID, state.StopOrderID, state.TakeProfitOrderID} {
		if id == nil {
			continue
		}
		if _, err := retry(ctx, e.cfg.Retry, func() (struct{}, error) {
			return struct{}{}, adapter.CancelOrder(ctx, state.Symbol, *id)
		}); err != nil && exchangeadapter.Classify(err) != exchangeadapter.KindOrderNotFound {
			return model.OrderState{}, err
		}
	}
	state.Status = model.StatusCancelled
	state.UpdatedAt = time.Now().UTC()
	return state, nil
}

func (e *Executor) cancelBestEffort(ctx context.Context, adapter exchangeadapter.Adapter, symbol string, orderID int64) {
	if _, err := retry(ctx, e.cfg.Retry, func() (struct{}, error) {
		return struct{}{}, adapter.CancelOrder(ctx, symbol, orderID)
	}); err != nil && exchangeadapter.Classify(err) != exchangeadapter.KindOrderNotFound {
		log.Printf("[executor] rollback cancel of order %d failed: %v", orderID, err)
	}
}

func (e *Executor) classifyInfraOrFail(bot model.BotConfig, sig model.ArmSignal, err error) (model.OrderState, error) {
	kind := exchangeadapter.Classify(err)
	switch kind {
	case exchangeadapter.KindAuth:
		notify.AlertAuthFailure(e.notifier, bot.ID, sig.Symbol, err)
		return failedState(bot, sig, err), nil
	case exchangeadapter.KindInsufficientBal:
		s := newState(bot, sig, model.StatusSkippedLowBalance)
		return s, nil
	case exchangeadapter.KindBadRequest:
		return failedState(bot, sig, err), nil
	default:
		// rate_limit/exchange_down/unknown: infrastructure error, propagate so
		// the Poller leaves the stream entry unacknowledged for redelivery.
		return model.OrderState{}, err
	}
}

func failedState(bot model.BotConfig, sig model.ArmSignal, err error) model.OrderState {
	s := newState(bot, sig, model.StatusFailed)
	log.Printf("[executor:%s] bot=%s trio placement failed: %v", sig.Symbol, bot.ID, err)
	return s
}

func sidesFor(side model.Side) (entry, exit exchangeadapter.OrderSide) {
	if side == model.SideLong {
		return exchangeadapter.SideBuy, exchangeadapter.SideSell
	}
	return exchangeadapter.SideSell, exchangeadapter.SideBuy
}

func shortNonce() string {
	return uuid.NewString()[:8]
}
