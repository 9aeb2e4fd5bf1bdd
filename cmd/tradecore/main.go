// Command tradecore is the composition root: it loads configuration, wires
// the stream bus, stores, exchange adapters and alerting port, then starts
// the five long-running components described in the design (one ingestor
// and one calculator per symbol, one poller per symbol, one shared monitor,
// and one heartbeat task per symbol) until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"tradecore/internal/botlock"
	"tradecore/internal/calculator"
	"tradecore/internal/config"
	"tradecore/internal/exchangeclient"
	"tradecore/internal/executor"
	"tradecore/internal/ingestor"
	"tradecore/internal/model"
	"tradecore/internal/monitor"
	"tradecore/internal/notify"
	"tradecore/internal/router"
	"tradecore/internal/store"
	"tradecore/internal/streambus"
)

func main() {
	cfg := config.Load()
	log.Println("tradecore starting")

	bus := streambus.New(streambus.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := bus.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("tradecore: stream bus unreachable: %v", err)
	}
	cancel()

	bots, err := loadBots(cfg)
	if err != nil {
		log.Fatalf("tradecore: %v", err)
	}
	botRepo := store.NewInMemoryBotConfigs(bots)
	orderRepo := store.NewInMemoryOrderStates()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	for _, bot := range bots {
		if err := bus.AddBotIndex(rootCtx, bot.Symbol, bot.ID); err != nil {
			log.Printf("tradecore: seed bot index for %s: %v", bot.ID, err)
		}
	}

	resolver := exchangeclient.StaticResolver{APIKey: cfg.BinanceAPIKey, APISecret: cfg.BinanceAPISecret}
	adapters := exchangeclient.NewFactory(resolver, cfg.DryRunMode)

	notifier := notifyFrom(cfg)

	locks := botlock.New()

	exec := executor.New(adapters, notifier, executor.Config{
		Retry:              executor.RetryPolicy{MaxRetries: cfg.MaxRetries, BackoffFactor: cfg.BackoffFactor},
		BalanceTTL:         time.Duration(cfg.BalanceTTLSeconds) * time.Second,
		DefaultTPRMultiple: cfg.DefaultTPRMultiple,
		DefaultLeverage:    cfg.DefaultLeverage,
	})

	mon := monitor.New(orderRepo, botRepo, adapters, notifier, locks, monitor.Config{
		DefaultTPRMultiple: cfg.DefaultTPRMultiple,
		BotCacheTTL:        time.Duration(cfg.RouterRefreshSeconds) * time.Second,
	})

	var wg sync.WaitGroup
	stopCh := make(chan struct{})

	var restClient *futures.Client
	if cfg.BackfillOnStart && !cfg.DryRunMode {
		if cfg.IsTestnet {
			futures.UseTestnet = true
		}
		restClient = binance.NewFuturesClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret)
	}

	for _, symbol := range cfg.Symbols {
		symbol := symbol

		ing := ingestor.New(bus, restClient, ingestor.Config{
			Symbol:          symbol,
			BackfillOnStart: cfg.BackfillOnStart,
			Backfill1mLimit: cfg.Backfill1mLimit,
			BackfillMin2m:   cfg.BackfillMin2m,
			MaxLen1m:        cfg.StreamMaxLenMarket1m,
			MaxLen2m:        cfg.StreamMaxLenMarket2m,
			Retention:       time.Duration(cfg.StreamRetentionMs) * time.Millisecond,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ing.Run(rootCtx, stopCh); err != nil {
				log.Printf("tradecore: ingestor[%s] exited: %v", symbol, err)
			}
		}()

		calc := calculator.New(bus, calculator.Config{
			Symbol:          symbol,
			Timeframe:       model.Timeframe2m,
			Group:           "calculator",
			Consumer:        "calculator-" + symbol,
			TickSize:        cfg.DefaultTickSize,
			FreshnessWindow: time.Duration(cfg.CatchupThresholdMs) * time.Millisecond,
			IndMaxLen:       cfg.StreamMaxLenInd,
			SignalMaxLen:    cfg.StreamMaxLenSignal,
		})
		if err := calc.Resume(rootCtx); err != nil {
			log.Printf("tradecore: calculator[%s] resume: %v", symbol, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := calc.Run(rootCtx, cfg.StreamBlockMs); err != nil && rootCtx.Err() == nil {
				log.Printf("tradecore: calculator[%s] exited: %v", symbol, err)
			}
		}()

		poller := router.New(bus, botRepo, orderRepo, exec, locks, router.Config{
			Symbol:          symbol,
			Timeframe:       model.Timeframe2m,
			Group:           "router",
			Consumer:        "router-" + symbol,
			RefreshInterval: time.Duration(cfg.RouterRefreshSeconds) * time.Second,
			BlockTimeout:    time.Duration(cfg.StreamBlockMs) * time.Millisecond,
			ReclaimIdle:     30 * time.Second,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.RefreshLoop(rootCtx)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := poller.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				log.Printf("tradecore: poller[%s] exited: %v", symbol, err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			heartbeatLoop(rootCtx, bus, "heartbeat.ingestor."+symbol, 30*time.Second)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.RunLoop(rootCtx, time.Duration(cfg.OrderMonitorIntervalSeconds)*time.Second)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("tradecore: shutdown signal received, draining")

	close(stopCh)
	cancelRoot()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Println("tradecore: shutdown timeout exceeded, forcing exit")
	}
	log.Println("tradecore: stopped")
}

func loadBots(cfg *config.Config) ([]model.BotConfig, error) {
	if cfg.BotsConfigFile == "" {
		log.Println("tradecore: BOTS_CONFIG_FILE not set, starting with no bots")
		return nil, nil
	}
	bots, err := store.LoadBotConfigsFile(cfg.BotsConfigFile)
	if err != nil {
		return nil, fmt.Errorf("load bots: %w", err)
	}
	log.Printf("tradecore: loaded %d bot configs from %s", len(bots), cfg.BotsConfigFile)
	return bots, nil
}

func notifyFrom(cfg *config.Config) notify.Notifier {
	tg := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID)
	if tg == nil {
		return notify.NoOp{}
	}
	return tg
}

func heartbeatLoop(ctx context.Context, bus *streambus.Bus, key string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := bus.Heartbeat(ctx, key, interval*3); err != nil {
			log.Printf("tradecore: heartbeat %s: %v", key, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
