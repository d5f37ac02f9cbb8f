// cmd/papertrade runs the paper trading service: the signal engine and the
// ledger behind one HTTP API, with fills streamed over /ws.
//
// Configuration comes from the YAML file named in PAPERTRADE_CONFIG and the
// environment; see config.Load.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"papertrade/config"
	"papertrade/internal/api"
	"papertrade/internal/execution"
	"papertrade/internal/gateway"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/notification"
	sig "papertrade/internal/signal"
	"papertrade/internal/store/redis"
	"papertrade/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.Service, logger.ParseLevel(cfg.LogLevel))
	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	store, err := sqlite.Open(sqlite.Config{DBPath: cfg.SQLitePath}, log)
	if err != nil {
		return err
	}
	defer store.Close()

	market := redis.NewMarketData(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Lookback: cfg.Redis.Lookback,
		Breaker:  cfg.Redis.Breaker,
		Timeout:  cfg.Redis.Timeout,
	}, m, log)
	defer market.Close()
	if err := market.Ping(ctx); err != nil {
		log.Warn("redis not reachable at startup, signals and market orders will fail until it is", "addr", cfg.Redis.Addr, "error", err)
	}

	engine, err := sig.NewEngine(sig.EngineConfig{
		Params:   cfg.Signal.Params,
		Weights:  cfg.Signal.Weights,
		Fallback: sig.FallbackPolicy(cfg.Signal.Fallback),
	}, log, sig.WithMarketData(market), sig.WithJournal(store), sig.WithMetrics(m))
	if err != nil {
		return err
	}

	l := ledger.New(store, log)
	hub := gateway.NewHub(cfg.WSReplay, m, log)
	defer hub.Close()

	notifiers := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Notify.WebhookURL, log))
	}
	if cfg.Notify.TelegramToken != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, log))
	}

	exec := execution.New(execution.Config{
		Universe:    cfg.Universe,
		SlippageBps: cfg.SlippageBps,
	}, l, market, log,
		execution.WithNotifier(notifiers),
		execution.WithPublisher(hub),
		execution.WithMetrics(m),
	)
	defer exec.Close()

	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, market.Client(), store.DB(), 15*time.Second)

	deps := api.Deps{
		Engine:         engine,
		Executor:       exec,
		Ledger:         l,
		Market:         market,
		Journal:        store,
		Hub:            hub,
		Health:         health,
		InitialBalance: cfg.InitialBalance,
		Universe:       cfg.Universe,
		Log:            log,
	}
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, health, prometheus.DefaultGatherer, log)
		metricsSrv.Start()
	} else {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "universe", len(cfg.Universe))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if metricsSrv != nil {
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", "error", err)
		}
	}
	// Hijacked websocket connections are not tracked by Shutdown; the
	// deferred hub.Close ends them.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
