// Package calculator maintains the SMA20/SMA200 regime for one symbol and
// publishes ARM/DISARM signals on every qualifying transition.
package calculator

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
	"tradecore/internal/streambus"
)

const (
	smaShortPeriod = 20
	smaLongPeriod  = 200
)

// Calculator is the per-symbol task described in §4.2: it tails the 2-minute
// market stream, updates rolling MAs, decides regime, and emits signals.
type Calculator struct {
	bus      *streambus.Bus
	symbol   string
	tf       model.Timeframe
	group    string
	consumer string

	smaShort *RollingSMA
	smaLong  *RollingSMA

	lastRed      model.Candle
	haveLastRed  bool
	lastGreen    model.Candle
	haveLastGreen bool

	havePrevRegime bool
	prevRegime     model.Regime
	prevIndTs      int64
	lastSignalTs   int64

	watermark int64

	catchUp         bool
	freshnessWindow time.Duration
	pendingCatchup  *bufferedSignals

	gen *SignalGenerator

	indMaxLen    int64
	signalMaxLen int64
}

// bufferedSignals is the single catch-up slot: the most recent signal
// candidate, overwritten as later bars supersede it, regardless of side.
type bufferedSignals struct {
	ts      int64
	signals []model.Signal
}

// Config carries the per-symbol tunables the calculator needs.
type Config struct {
	Symbol          string
	Timeframe       model.Timeframe
	Group           string
	Consumer        string
	TickSize        decimal.Decimal
	FreshnessWindow time.Duration
	IndMaxLen       int64
	SignalMaxLen    int64
}

// New constructs a Calculator in catch-up mode; Resume should be called
// before Run to restore the watermark from the output streams.
func New(bus *streambus.Bus, cfg Config) *Calculator {
	return &Calculator{
		bus:             bus,
		symbol:          cfg.Symbol,
		tf:              cfg.Timeframe,
		group:           cfg.Group,
		consumer:        cfg.Consumer,
		smaShort:        NewRollingSMA(smaShortPeriod),
		smaLong:         NewRollingSMA(smaLongPeriod),
		catchUp:         true,
		freshnessWindow: cfg.FreshnessWindow,
		gen:             NewSignalGenerator(cfg.TickSize),
		indMaxLen:       cfg.IndMaxLen,
		signalMaxLen:    cfg.SignalMaxLen,
	}
}

// Resume reads the last emitted ts from the indicator and signal streams to
// establish the forward-only watermark before live processing starts.
func (c *Calculator) Resume(ctx context.Context) error {
	indKey := streambus.IndicatorStreamKey(c.symbol, string(c.tf))
	sigKey := streambus.SignalStreamKey(c.symbol, string(c.tf))

	for _, key := range []string{indKey, sigKey} {
		tail, err := c.bus.Tail(ctx, key)
		if err != nil {
			return fmt.Errorf("calculator: resume tail %s: %w", key, err)
		}
		if tail == "0" {
			continue
		}
		ts := tsFromEntryID(tail)
		if ts > c.watermark {
			c.watermark = ts
		}
	}
	return nil
}

func tsFromEntryID(id string) int64 {
	for i, ch := range id {
		if ch == '-' {
			v, _ := strconv.ParseInt(id[:i], 10, 64)
			return v
		}
	}
	v, _ := strconv.ParseInt(id, 10, 64)
	return v
}

// Run tails the market stream via a consumer group until ctx is cancelled.
func (c *Calculator) Run(ctx context.Context, blockMs int64) error {
	marketKey := streambus.MarketStreamKey(c.symbol, string(c.tf))
	if err := c.bus.EnsureGroup(ctx, marketKey, c.group, "$"); err != nil {
		return fmt.Errorf("calculator: ensure group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.bus.ReadGroup(ctx, c.group, c.consumer, []string{marketKey}, 100, time.Duration(blockMs)*time.Millisecond)
		if err != nil {
			log.Printf("[calculator:%s] read error: %v", c.symbol, err)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Values {
				bar, err := parseCandle(c.symbol, c.tf, msg.Values)
				if err != nil {
					log.Printf("[calculator:%s] malformed candle %s: %v", c.symbol, msg.ID, err)
					c.bus.Ack(ctx, marketKey, c.group, msg.ID)
					continue
				}
				if err := c.ProcessBar(ctx, bar); err != nil {
					log.Printf("[calculator:%s] process bar %s: %v", c.symbol, msg.ID, err)
				}
				c.bus.Ack(ctx, marketKey, c.group, msg.ID)
			}
		}
	}
}

func parseCandle(symbol string, tf model.Timeframe, fields map[string]interface{}) (model.Candle, error) {
	get := func(k string) (decimal.Decimal, error) {
		raw, ok := fields[k].(string)
		if !ok {
			return decimal.Zero, fmt.Errorf("missing field %s", k)
		}
		return decimal.NewFromString(raw)
	}
	open, err := get("open")
	if err != nil {
		return model.Candle{}, err
	}
	high, err := get("high")
	if err != nil {
		return model.Candle{}, err
	}
	low, err := get("low")
	if err != nil {
		return model.Candle{}, err
	}
	close, err := get("close")
	if err != nil {
		return model.Candle{}, err
	}
	volume, err := get("volume")
	if err != nil {
		return model.Candle{}, err
	}
	tsRaw, _ := fields["ts"].(string)
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("missing/malformed ts field")
	}
	tradesRaw, _ := fields["trades"].(string)
	trades, _ := strconv.ParseInt(tradesRaw, 10, 64)

	return model.Candle{
		TsMs:       ts,
		Symbol:     symbol,
		Timeframe:  tf,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
		TradeCount: trades,
		Color:      model.ColorOf(open, close),
	}, nil
}

// ProcessBar implements the full per-bar algorithm described in §4.2,
// including catch-up buffering.
func (c *Calculator) ProcessBar(ctx context.Context, bar model.Candle) error {
	skip := bar.TsMs <= c.watermark

	ma20, ready20 := c.smaShort.Add(bar.Close)
	ma200, ready200 := c.smaLong.Add(bar.Close)

	if !bar.IsDoji() {
		if bar.Color == model.ColorRed {
			c.lastRed, c.haveLastRed = bar, true
		} else {
			c.lastGreen, c.haveLastGreen = bar, true
		}
	}

	if !ready20 || !ready200 {
		if !skip {
			c.publishIndicator(ctx, model.IndicatorState{
				Symbol: c.symbol, Timeframe: c.tf, Ts: bar.TsMs, Close: bar.Close,
				Regime: model.RegimeNeutral, IndTs: bar.TsMs, IndHigh: bar.High, IndLow: bar.Low,
			})
		}
		return nil
	}

	ma20d, ma200d := ma20, ma200
	closeForLong := bar.Close
	if c.haveLastRed {
		closeForLong = c.lastRed.Close
	}
	closeForShort := bar.Close
	if c.haveLastGreen {
		closeForShort = c.lastGreen.Close
	}

	regime := DecideRegime(&ma20d, &ma200d, closeForLong, closeForShort)
	indicator := IndicatorCandle(&ma20d, &ma200d, c.lastRed, c.lastGreen, bar, c.haveLastRed, c.haveLastGreen)

	state := model.IndicatorState{
		Symbol: c.symbol, Timeframe: c.tf, Ts: bar.TsMs, Close: bar.Close,
		MA20: &ma20d, MA200: &ma200d, Regime: regime,
		IndTs: indicator.TsMs, IndHigh: indicator.High, IndLow: indicator.Low,
	}

	if skip {
		c.advanceRegimeOnly(regime, indicator.TsMs)
		return nil
	}

	c.publishIndicator(ctx, state)

	var signals []model.Signal
	if bar.TsMs > c.lastSignalTs {
		signals = c.gen.Transition(c.symbol, c.tf, bar.TsMs,
			c.prevRegime, c.prevIndTs, c.havePrevRegime,
			regime, indicator.TsMs, indicator.High, indicator.Low)
	}
	c.advanceRegimeOnly(regime, indicator.TsMs)

	if !c.catchUp {
		if len(signals) == 0 {
			return nil
		}
		return c.publishSignals(ctx, bar.TsMs, signals)
	}

	// Catch-up mode: never publish; keep only the latest candidate.
	if len(signals) > 0 {
		c.pendingCatchup = &bufferedSignals{ts: bar.TsMs, signals: signals}
	}

	fresh := time.Now().UnixMilli()-bar.TsMs <= c.freshnessWindow.Milliseconds()
	if !fresh {
		return nil
	}
	c.catchUp = false
	if c.pendingCatchup == nil {
		return nil
	}
	buffered := c.pendingCatchup
	c.pendingCatchup = nil
	return c.publishSignals(ctx, buffered.ts, buffered.signals)
}

func (c *Calculator) advanceRegimeOnly(regime model.Regime, indTs int64) {
	c.prevRegime = regime
	c.havePrevRegime = true
	c.prevIndTs = indTs
}

func (c *Calculator) publishIndicator(ctx context.Context, state model.IndicatorState) {
	fields := map[string]string{
		"ts":       fmt.Sprintf("%d", state.Ts),
		"close":    state.Close.String(),
		"regime":   string(state.Regime),
		"ind_ts":   fmt.Sprintf("%d", state.IndTs),
		"ind_high": state.IndHigh.String(),
		"ind_low":  state.IndLow.String(),
	}
	if state.MA20 != nil {
		fields["ma20"] = state.MA20.String()
	}
	if state.MA200 != nil {
		fields["ma200"] = state.MA200.String()
	}
	id := fmt.Sprintf("%d-0", state.Ts)
	key := streambus.IndicatorStreamKey(c.symbol, string(c.tf))
	if _, err := c.bus.Append(ctx, key, id, fields, c.indMaxLen); err != nil {
		log.Printf("[calculator:%s] publish indicator: %v", c.symbol, err)
	}
	snapKey := streambus.SnapshotKey(c.symbol, string(c.tf))
	c.bus.SetSnapshot(ctx, snapKey, encodeFields(fields))
}

func encodeFields(fields map[string]string) string {
	out := ""
	for k, v := range fields {
		out += k + "=" + v + "\n"
	}
	return out
}

func (c *Calculator) publishSignals(ctx context.Context, ts int64, signals []model.Signal) error {
	key := streambus.SignalStreamKey(c.symbol, string(c.tf))
	for i, sig := range signals {
		id := fmt.Sprintf("%d-%d", ts, i+1)
		if _, err := c.bus.Append(ctx, key, id, model.ToFields(sig), c.signalMaxLen); err != nil {
			return fmt.Errorf("calculator: publish signal %d: %w", i, err)
		}
	}
	c.lastSignalTs = ts
	return nil
}
