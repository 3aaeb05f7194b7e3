package main

import (
	"context"
	"fmt"

	"github.com/dejobratic/orderflow/internal/database"
	"github.com/dejobratic/orderflow/internal/orders/adapters"
	orderspostgres "github.com/dejobratic/orderflow/internal/orders/adapters/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

func (rt *runtime) openDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, rt.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	if rt.cfg.Database.AutoMigrate {
		rt.logger.InfoContext(ctx, "running database migrations", "path", rt.cfg.Database.MigrationsPath)
		if err := database.RunMigrations(rt.cfg.Database.URL, rt.cfg.Database.MigrationsPath); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		rt.logger.InfoContext(ctx, "migrations completed successfully")
	}
	return pool, nil
}

func (rt *runtime) auditRepository(pool *pgxpool.Pool) (*adapters.ObservableAuditRepository, error) {
	dbMetrics, err := database.NewMetrics(rt.meter)
	if err != nil {
		return nil, fmt.Errorf("create database metrics: %w", err)
	}
	return adapters.NewObservableAuditRepository(orderspostgres.NewAuditRepository(pool), dbMetrics), nil
}
