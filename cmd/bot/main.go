package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/exchange"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/logger"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/storage"
	"github.com/vitos/tg_signal_trader/internal/notify"
	"github.com/vitos/tg_signal_trader/internal/usecase"
	"github.com/vitos/tg_signal_trader/internal/web"
	"go.uber.org/zap"
)

const instrumentRefreshInterval = 15 * time.Minute

func main() {
	// 1. Load settings and secrets
	settings, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Printf("Failed to load secrets: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if settings.LogFile != "" {
		log, err = logger.NewFileLogger(settings.LogLevel, settings.LogFile)
	} else {
		log, err = logger.NewLogger(settings.LogLevel)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.NewManager(settings)

	// 3. Init Storage
	store, err := storage.NewSQLiteStore("bot.db")
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange
	var ex domain.Exchange
	if settings.DryRun && secrets.ExchangeAPIKey == "" {
		log.Info("dry run without credentials, using paper exchange")
		ex = exchange.NewPaperExchange()
	} else {
		if err := secrets.RequireExchange(); err != nil {
			log.Fatal("Exchange credentials missing", zap.Error(err))
		}
		baseURL := exchange.BinanceBaseURL
		if settings.UseTestnet {
			baseURL = exchange.BinanceTestnetURL
		}
		ex = exchange.NewBinanceAdapter(secrets.ExchangeAPIKey, secrets.ExchangeAPISecret, baseURL)
	}

	// 5. Events and notifications
	em := events.NewEmitter(log)
	em.AddSink(events.NewLogSink(log))
	hub := web.NewHub(log)
	em.AddSink(hub)

	var notifier usecase.Notifier = notify.Noop{}
	if secrets.BotToken != "" && secrets.NotifyChat != "" {
		notifier = notify.NewTelegramSender(secrets.BotToken, secrets.NotifyChat)
	}

	// 6. Core services
	table := usecase.NewInstrumentTable()
	parser := usecase.NewParser(em, log)
	resolver := usecase.NewResolver(table, log)
	risk := usecase.NewRiskGuard(ex, log)
	engine := usecase.NewEngine(ex, cfg, em, store, notifier, log)
	trader := usecase.NewTrader(parser, resolver, risk, engine, cfg, em, log)
	watchdog := usecase.NewWatchdog(engine, ex, cfg, em, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := table.Refresh(ctx, ex, settings.QuoteAsset); err != nil {
		log.Error("Failed to load instruments", zap.Error(err))
	}

	// 7. Background loops
	go hub.Run(ctx)
	go engine.RunTrailingLoop(ctx)
	go watchdog.Run(ctx)
	go func() {
		ticker := time.NewTicker(instrumentRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := table.Refresh(ctx, ex, cfg.Snapshot().QuoteAsset); err != nil {
					log.Error("Failed to refresh instruments", zap.Error(err))
				}
			}
		}
	}()

	// 8. Web server
	server := web.NewServer(settings.ServerPort, trader, engine, watchdog, cfg, em, store, hub, secrets.SourceChannel, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("bot started",
		zap.Bool("dry_run", settings.DryRun),
		zap.String("quote_asset", settings.QuoteAsset),
		zap.Int("port", settings.ServerPort),
	)

	// 9. Wait for shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	engine.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
