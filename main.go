package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/aggregate"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/analysis"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/api"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/candlecache"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/engine"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/events"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/monitor"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/risk"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/config"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/db"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/ratelimit"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/stream"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if cfg.PairsFile != "" {
		pairs, err := config.LoadPairs(cfg.PairsFile)
		if err != nil {
			log.Fatalf("pairs config %s: %v", cfg.PairsFile, err)
		}
		cfg.ApplyPairs(pairs)
	}
	log.Printf("starting trading core on port %s, symbols=%v timeframes=%v",
		cfg.Port, cfg.Symbols, cfg.Timeframes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	limiter := ratelimit.New(ratelimit.Limits{
		Global:     cfg.RateGlobal,
		MarketData: cfg.RateMarketData,
		Trading:    cfg.RateTrading,
		Account:    cfg.RateAccount,
	})

	client := broker.NewClient(cfg.BrokerBaseURL, broker.Credentials{
		APIKey:   cfg.BrokerAPIKey,
		Username: cfg.BrokerUsername,
		Password: cfg.BrokerPassword,
	}, limiter)
	if err := client.Authenticate(ctx); err != nil {
		log.Fatalf("broker authentication failed: %v", err)
	}
	log.Println("broker session established")

	// Candle cache: sqlite by default, redis when configured
	var store candlecache.Store
	switch cfg.CacheBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis %s unreachable: %v", cfg.RedisAddr, err)
		}
		store = candlecache.NewRedisStore(rdb, cfg.CacheMaxAge)
		log.Printf("candle cache backed by redis at %s", cfg.RedisAddr)
	default:
		store = candlecache.NewSQLiteStore(database)
	}
	cache := candlecache.New(store, cfg.CacheMaxAge)
	cache.StartSweeper(ctx, time.Hour)
	defer cache.Stop()

	loader := candlecache.NewLoader(cache, client)
	go warmHistory(ctx, loader, cfg.Symbols, cfg.Timeframes)

	// Tick aggregation
	agg := aggregate.New(bus)
	for _, epic := range cfg.Symbols {
		for _, tf := range cfg.Timeframes {
			if err := agg.Subscribe(epic, tf); err != nil {
				log.Fatalf("aggregator subscribe %s %s: %v", epic, tf, err)
			}
		}
	}
	agg.Start(ctx)
	defer agg.Stop()

	// Live prices
	streamMgr := stream.NewManager(cfg.BrokerStreamURL, client, func(err error) {
		log.Printf("stream unrecoverable: %v", err)
		events.Publish(bus, events.StreamFailures, err)
		cancel()
	})
	if err := streamMgr.Connect(ctx); err != nil {
		log.Fatalf("stream connect failed: %v", err)
	}
	defer streamMgr.Close()
	for _, epic := range cfg.Symbols {
		if err := streamMgr.Subscribe(epic, func(t market.Tick) {
			metrics.IncrementTicks()
			agg.AddTick(t)
		}); err != nil {
			log.Fatalf("stream subscribe %s: %v", epic, err)
		}
	}

	// Order and position counters for the status API
	filledCh, unsubFilled := events.Subscribe(bus, events.OrdersFilled, 64)
	defer unsubFilled()
	closedCh, unsubClosed := events.Subscribe(bus, events.PositionsClosed, 64)
	defer unsubClosed()
	go func() {
		for range filledCh {
			metrics.IncrementOrders()
		}
	}()
	go func() {
		for range closedCh {
			metrics.IncrementClosed()
		}
	}()

	// Trading engine
	riskCfg := risk.DefaultConfig()
	riskCfg.MaxPositions = cfg.MaxPositions
	riskCfg.MaxRiskPerTrade = cfg.MaxRiskPerTrade
	riskCfg.MaxDrawdown = cfg.MaxDrawdown
	riskCfg.MinIncrement = cfg.MinIncrement

	eng := engine.New(engine.Options{
		Config:     riskCfg,
		Symbols:    cfg.Symbols,
		Timeframes: cfg.Timeframes,
		Broker:     client,
		Analyzer:   timedAnalyzer{analysis.NewHTTPAnalyzer(cfg.AnalyzerURL), metrics.AnalysisLatency},
		Bus:        bus,
		Database:   database,
		Interval:   cfg.AnalyzeInterval,
	})
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("engine start failed: %v", err)
	}
	defer eng.Stop()

	// Status API
	if cfg.APIEnabled {
		version := os.Getenv("APP_VERSION")
		if version == "" {
			version = "dev"
		}
		server := api.NewServer(eng, cache, database, metrics, api.SystemMeta{
			Broker:     "capital",
			Symbols:    cfg.Symbols,
			Timeframes: cfg.Timeframes,
			Version:    version,
			StartedAt:  time.Now().UTC().Format(time.RFC3339),
		}, cfg.JWTSecret)
		go func() {
			if err := server.Router.Run(":" + cfg.Port); err != nil {
				log.Fatalf("api server error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	log.Println("shutting down")
}

// timedAnalyzer records analysis round-trip latency around the real analyzer.
type timedAnalyzer struct {
	inner analysis.Analyzer
	hist  *monitor.LatencyHistogram
}

func (t timedAnalyzer) Analyze(ctx context.Context, epic string, timeframes []string) (*analysis.Result, error) {
	timer := monitor.NewTimer(t.hist)
	defer timer.Stop()
	return t.inner.Analyze(ctx, epic, timeframes)
}

// warmHistory keeps the recent candle ranges for every traded pair cached so
// downstream consumers read history without hitting the broker. Ranges are
// hour-aligned so repeat lookups within the hour are cache hits.
func warmHistory(ctx context.Context, loader *candlecache.Loader, symbols, timeframes []string) {
	refresh := func() {
		to := time.Now().UTC().Truncate(time.Hour)
		from := to.Add(-24 * time.Hour)
		for _, epic := range symbols {
			for _, tf := range timeframes {
				if _, err := loader.Candles(ctx, epic, tf, from, to); err != nil {
					log.Printf("history warm %s %s: %v", epic, tf, err)
				}
			}
		}
	}

	refresh()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
