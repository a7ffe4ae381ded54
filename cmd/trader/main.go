package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tickscalper/internal/config"
	"tickscalper/internal/forward"
	"tickscalper/internal/ingest"
	"tickscalper/internal/observ"
	"tickscalper/internal/paper"
	"tickscalper/internal/risk"
	"tickscalper/internal/store"
	"tickscalper/internal/transport"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to yaml config (optional)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			observ.LogError("config_load_error", err, map[string]any{"path": configPath})
			os.Exit(1)
		}
		cfg = loaded
	}
	observ.Log("starting", map[string]any{
		"symbols": cfg.Feed.Symbols,
		"ws_url":  cfg.Feed.WSURL,
		"db":      cfg.Database.DSN != "",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Persistence is optional; without a DSN the sink is a no-op.
	var st store.Store = store.Nop{}
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgres(cfg.Database.DSN)
		if err != nil {
			observ.LogError("store_open_error", err, nil)
			os.Exit(1)
		}
		st = pg
	}
	writer := store.NewAsync(st, 1024)
	writer.Start(ctx)

	fees := paper.FeeConfig{
		TakerRate:    cfg.Trading.Fees.TakerRate,
		MakerRate:    cfg.Trading.Fees.MakerRate,
		Maker:        cfg.Trading.Fees.Maker,
		Discount:     cfg.Trading.Fees.Discount,
		DiscountMult: cfg.Trading.Fees.DiscountMult,
		SettleAsset:  cfg.Trading.Fees.SettleAsset,
	}
	engine := paper.NewEngine(cfg.Trading.MaxPositions, fees, writer)

	ctrl := risk.NewController(risk.Config{
		CooldownMs:       cfg.Trading.CooldownMs,
		FlipConfirmCount: cfg.Trading.FlipConfirmCount,
		FlipIntervalMs:   cfg.Trading.FlipIntervalMs,
	})

	hook := forward.NewWebhook(cfg.Feed.WebhookURL)
	dispatcher := ingest.NewDispatcher(cfg, engine, ctrl, writer, hook)

	tradeFeed := ingest.NewFeed(cfg.Feed, cfg.Feed.TradeStream, dispatcher)
	go tradeFeed.Run(ctx)
	if cfg.Feed.EnableDepth == nil || *cfg.Feed.EnableDepth {
		bookFeed := ingest.NewFeed(cfg.Feed, cfg.Feed.DepthStream, dispatcher)
		go bookFeed.Run(ctx)
	}

	// Daily retention sweep for signal samples.
	go func() {
		retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		writer.Purge(retention)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				writer.Purge(retention)
			}
		}
	}()

	server := transport.NewServer(cfg.Server.Addr, dispatcher, st)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			observ.LogError("http_server_error", err, nil)
			cancel()
		}
	}()

	<-ctx.Done()
	observ.Log("shutting_down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		observ.LogError("http_shutdown_error", err, nil)
	}
	writer.Wait()
	observ.Log("stopped", nil)
}
