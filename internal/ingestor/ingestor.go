// Package ingestor implements §4.1: one task per configured symbol dials the
// 1-minute kline websocket, dedups and republishes closed bars, folds them
// into 2-minute bars via the aggregator, and backfills history on startup so
// the calculator's rolling windows are warm before live bars arrive.
package ingestor

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tradecore/internal/aggregator"
	"tradecore/internal/model"
	"tradecore/internal/streambus"
)

// oneMinuteDedupTTL is the minimum lifetime of the 1-minute publication
// ledger key (§4.1 step 1: "a first-wins set with TTL >= 7 days gates
// publication"), long enough to outlive any realistic backfill/reconnect
// replay window.
const oneMinuteDedupTTL = 7 * 24 * time.Hour

// Config carries one symbol task's tunables.
type Config struct {
	Symbol          string
	BackfillOnStart bool
	Backfill1mLimit int
	BackfillMin2m   int
	MaxLen1m        int64
	MaxLen2m        int64
	Retention       time.Duration
}

// Ingestor owns one symbol's 1-minute ingestion and 2-minute aggregation.
type Ingestor struct {
	bus    *streambus.Bus
	client *futures.Client
	cfg    Config
	agg    *aggregator.TwoMinuteAggregator

	lastTs2m int64
}

// New constructs an Ingestor. client may be nil when BackfillOnStart is
// false (tests / dry-run without exchange credentials).
func New(bus *streambus.Bus, client *futures.Client, cfg Config) *Ingestor {
	return &Ingestor{bus: bus, client: client, cfg: cfg, agg: aggregator.New()}
}

// Run backfills (if configured) then dials the live kline stream, blocking
// until stop is closed.
func (ing *Ingestor) Run(ctx context.Context, stop <-chan struct{}) error {
	if ing.cfg.BackfillOnStart {
		if err := ing.backfill(ctx); err != nil {
			log.Printf("[ingestor:%s] backfill failed, continuing live-only: %v", ing.cfg.Symbol, err)
		}
	}

	klineListener(stop, ing.cfg.Symbol, func(k klineData) {
		bar, err := toCandle(ing.cfg.Symbol, k)
		if err != nil {
			log.Printf("[ingestor:%s] malformed live bar dropped: %v", ing.cfg.Symbol, err)
			return
		}
		ing.feed(ctx, bar)
	})
	return nil
}

// feed dedups and republishes a closed 1-minute bar, then folds it through
// the 2-minute aggregator and publishes any completed 2-minute bar. Dedup is
// gated by a Redis SETNX-with-TTL ledger keyed on (source, symbol, close_ts)
// rather than an in-process watermark, so a restarted ingestor task does not
// republish bars it already emitted before the crash.
func (ing *Ingestor) feed(ctx context.Context, bar model.Candle) {
	ledgerKey := fmt.Sprintf("source:%s:1m:%d", ing.cfg.Symbol, bar.TsMs)
	won, err := ing.bus.FirstWriterWins(ctx, ledgerKey, oneMinuteDedupTTL)
	if err != nil {
		log.Printf("[ingestor:%s] dedup ledger check for ts=%d: %v", ing.cfg.Symbol, bar.TsMs, err)
		return
	}
	if !won {
		return // already published: reconnect replay, backfill overlap, or redelivery
	}
	ing.publish1m(ctx, bar)

	two, ok := ing.agg.Feed(bar)
	if !ok {
		return
	}
	if two.TsMs <= ing.lastTs2m {
		return
	}
	ing.lastTs2m = two.TsMs
	ing.publish2m(ctx, two)
}

func (ing *Ingestor) publish1m(ctx context.Context, bar model.Candle) {
	key := streambus.MarketStreamKey(ing.cfg.Symbol, string(model.Timeframe1m))
	id := fmt.Sprintf("%d-0", bar.TsMs)
	if _, err := ing.bus.Append(ctx, key, id, candleFields(bar), ing.cfg.MaxLen1m); err != nil {
		log.Printf("[ingestor:%s] publish 1m bar: %v", ing.cfg.Symbol, err)
	}
	ing.trim(ctx, key)
}

func (ing *Ingestor) publish2m(ctx context.Context, bar model.Candle) {
	key := streambus.MarketStreamKey(ing.cfg.Symbol, string(model.Timeframe2m))
	id := fmt.Sprintf("%d-0", bar.TsMs)
	if _, err := ing.bus.Append(ctx, key, id, candleFields(bar), ing.cfg.MaxLen2m); err != nil {
		log.Printf("[ingestor:%s] publish 2m bar: %v", ing.cfg.Symbol, err)
	}
	ing.trim(ctx, key)
}

func (ing *Ingestor) trim(ctx context.Context, key string) {
	if ing.cfg.Retention <= 0 {
		return
	}
	if err := ing.bus.TrimByMinID(ctx, key, ing.cfg.Retention); err != nil {
		log.Printf("[ingestor:%s] trim %s: %v", ing.cfg.Symbol, key, err)
	}
}

// backfill, when the 2-minute stream holds fewer than BackfillMin2m entries,
// pulls recent closed 1-minute klines over REST, republishes them in order,
// and folds every completed pair into 2-minute bars so the calculator's
// SMA200 window is warm on first live bar (§4.1 "Backfill").
func (ing *Ingestor) backfill(ctx context.Context) error {
	if ing.client == nil {
		return nil
	}
	minReq := ing.cfg.BackfillMin2m
	if minReq > 0 {
		key2m := streambus.MarketStreamKey(ing.cfg.Symbol, string(model.Timeframe2m))
		existing, err := ing.bus.Range(ctx, key2m, "-", "+")
		if err == nil && len(existing) >= minReq {
			return nil
		}
	}
	limit := ing.cfg.Backfill1mLimit
	if limit <= 0 {
		limit = 500
	}
	klines, err := ing.client.NewKlinesService().
		Symbol(ing.cfg.Symbol).
		Interval("1m").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("ingestor: backfill klines: %w", err)
	}

	produced2m := 0
	for _, k := range klines {
		if k.CloseTime > time.Now().UnixMilli() {
			continue // the in-progress current candle, not yet closed
		}
		bar, err := toCandleFromREST(ing.cfg.Symbol, k)
		if err != nil {
			log.Printf("[ingestor:%s] malformed backfill bar dropped: %v", ing.cfg.Symbol, err)
			continue
		}
		ing.feed(ctx, bar)
		if isEvenMinuteClose(bar.TsMs) {
			continue
		}
		produced2m++
	}

	if minReq > 0 && produced2m < minReq {
		log.Printf("[ingestor:%s] backfill produced only %d/%d 2m bars; calculator will run a catch-up window", ing.cfg.Symbol, produced2m, minReq)
	}
	return nil
}

func isEvenMinuteClose(tsMs int64) bool {
	return (tsMs/60000)%2 == 0
}

func toCandle(symbol string, k klineData) (model.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return model.Candle{}, err
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return model.Candle{}, err
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return model.Candle{}, err
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return model.Candle{}, err
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return model.Candle{}, err
	}
	return model.Candle{
		TsMs:       k.CloseTime,
		Symbol:     symbol,
		Timeframe:  model.Timeframe1m,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
		TradeCount: k.TradeCount,
		Color:      model.ColorOf(open, closePrice),
	}, nil
}

func toCandleFromREST(symbol string, k *futures.Kline) (model.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return model.Candle{}, err
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return model.Candle{}, err
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return model.Candle{}, err
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return model.Candle{}, err
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return model.Candle{}, err
	}
	return model.Candle{
		TsMs:       k.CloseTime,
		Symbol:     symbol,
		Timeframe:  model.Timeframe1m,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
		TradeCount: k.TradeNum,
		Color:      model.ColorOf(open, closePrice),
	}, nil
}

func candleFields(bar model.Candle) map[string]string {
	return map[string]string{
		"ts":     fmt.Sprintf("%d", bar.TsMs),
		"open":   bar.Open.String(),
		"high":   bar.High.String(),
		"low":    bar.Low.String(),
		"close":  bar.Close.String(),
		"volume": bar.Volume.String(),
		"trades": strconv.FormatInt(bar.TradeCount, 10),
	}
}
