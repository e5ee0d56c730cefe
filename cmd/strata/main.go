// Command strata runs the strategy engine: it loads the process config,
// connects the Postgres store, starts the event bus and the scheduler
// registry, resumes every instance persisted as running and serves
// Prometheus metrics. Until a wire client for a concrete exchange is
// plugged in, market data and fills come from the in-process paper
// exchange.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/quantfold/strata/bus"
	"github.com/quantfold/strata/config"
	"github.com/quantfold/strata/exchange"
	"github.com/quantfold/strata/logger"
	"github.com/quantfold/strata/scheduler"
	"github.com/quantfold/strata/store"
	"github.com/quantfold/strata/store/pg"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			newStore,
			newBus,
			newExchange,
			newRegistry,
		),
		fx.Invoke(runScheduler, serveMetrics),
	)
	app.Run()
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	return logger.NewZapLogger(cfg.LogLevel)
}

func newStore(lc fx.Lifecycle, cfg *config.Config, log logger.Logger) (store.Store, error) {
	st, err := pg.Connect(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		st.Close()
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			st.Close()
			return nil
		},
	})
	log.Info("store connected")
	return st, nil
}

func newBus(cfg *config.Config) bus.Bus {
	return bus.NewChannelBus(cfg.BusBuffer)
}

func newExchange(cfg *config.Config, log logger.Logger) exchange.Client {
	log.Warn("using in-process paper exchange",
		logger.Float64("base_price", cfg.PaperBasePrice),
		logger.Float64("balance", cfg.PaperBalance))
	return exchange.NewPaper(cfg.PaperBasePrice, cfg.PaperBalance)
}

func newRegistry(log logger.Logger, st store.Store, ex exchange.Client, events bus.Bus, cfg *config.Config) *scheduler.Registry {
	return scheduler.NewRegistry(log, st, ex, events, cfg.Settle, exchange.Credentials{})
}

func runScheduler(lc fx.Lifecycle, reg *scheduler.Registry, log logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := reg.StartAll(ctx); err != nil {
				return err
			}
			log.Info("scheduler started")
			return nil
		},
		OnStop: func(context.Context) error {
			reg.Shutdown()
			log.Info("scheduler stopped")
			return nil
		},
	})
}

func serveMetrics(lc fx.Lifecycle, cfg *config.Config, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("metrics listener up", logger.String("addr", cfg.ListenAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics listener failed", logger.Err(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
