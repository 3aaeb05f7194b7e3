package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/orderflow/internal/database"
	idempostgres "github.com/dejobratic/orderflow/internal/idempotency/postgres"
	idemredis "github.com/dejobratic/orderflow/internal/idempotency/redis"
	httpadapter "github.com/dejobratic/orderflow/internal/orders/adapters/http"
	"github.com/dejobratic/orderflow/internal/orders/adapters/local"
	"github.com/dejobratic/orderflow/internal/orders/adapters/payment"
	orderspostgres "github.com/dejobratic/orderflow/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/checkout"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
	"github.com/spf13/cobra"
)

const idempotencyPurgeInterval = time.Hour

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout and admin HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	rt, err := bootstrap(ctx, opts, "api")
	if err != nil {
		return err
	}
	defer rt.shutdown()
	cfg, logger := rt.cfg, rt.logger

	pool, err := rt.openDatabase(ctx)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		return err
	}
	defer pool.Close()

	audit, err := rt.auditRepository(pool)
	if err != nil {
		return err
	}

	pub, err := rt.newPublisher()
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		return err
	}
	defer pub.close()

	checks := []httpadapter.ReadinessCheck{
		func(ctx context.Context) error { return database.CheckHealth(ctx, pool) },
	}
	if pub.ping != nil {
		checks = append(checks, pub.ping)
	}

	var idem ports.IdempotencyStore
	if cfg.Redis.Addr != "" {
		client, err := idemredis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Error("redis unavailable", "addr", cfg.Redis.Addr, "error", err)
			return err
		}
		defer client.Close()
		idem = idemredis.NewStore(client, cfg.Idempotency.TTL)
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		logger.Info("idempotency keys stored in redis", "addr", cfg.Redis.Addr)
	} else {
		store := idempostgres.NewStore(pool, cfg.Idempotency.TTL)
		idem = store
		go purgeIdempotencyKeys(ctx, rt, store)
	}

	ordersMetrics, err := metrics.NewMetrics(rt.meter)
	if err != nil {
		return fmt.Errorf("create orders metrics: %w", err)
	}

	rates := payment.Rates{Card: cfg.Payment.CardSuccessRate, EWallet: cfg.Payment.EWalletSuccessRate}
	runner := checkout.NewSaga(checkout.Dependencies{
		Inventory: local.NewInventory(logger),
		Payments:  payment.NewSimulatedAuthorizer(rates, nil, logger),
		Notifier:  local.NewNotifier(logger),
		Publisher: pub,
		Topic:     cfg.Checkout.OrdersTopic,
		Timeout:   cfg.Checkout.CollaboratorTimeout,
		Logger:    logger,
	},
		saga.WithLogger(logger),
		saga.WithMetrics(ordersMetrics),
		saga.WithSagaLog(orderspostgres.NewSagaLog(pool)),
	)

	service := ordersapp.NewService(runner, audit, idem, logger, ordersMetrics)

	httpMetrics, err := httpadapter.NewMetrics(rt.meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}
	router := httpadapter.NewRouter(httpadapter.NewHandler(service), httpMetrics, logger, allReady(checks))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port, "stages", runner.Stages())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	logger.Info("http server stopped")
	return nil
}

func allReady(checks []httpadapter.ReadinessCheck) httpadapter.ReadinessCheck {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func purgeIdempotencyKeys(ctx context.Context, rt *runtime, store *idempostgres.Store) {
	ticker := time.NewTicker(idempotencyPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeExpired(ctx)
			if err != nil {
				rt.logger.ErrorContext(ctx, "failed to purge idempotency keys", "error", err)
				continue
			}
			if purged > 0 {
				rt.logger.InfoContext(ctx, "purged expired idempotency keys", "count", purged)
			}
		}
	}
}
