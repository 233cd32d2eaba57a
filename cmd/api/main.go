// Command api serves the HTTP surface: plan catalog, enrollments, group and
// ledger reads, payment webhooks, and prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/contemplaapp/contempla-backend/api/routes"
	"github.com/contemplaapp/contempla-backend/internal/commission"
	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/internal/ledger"
	"github.com/contemplaapp/contempla-backend/internal/payments"
	"github.com/contemplaapp/contempla-backend/internal/plans"
	"github.com/contemplaapp/contempla-backend/internal/referral"
	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/metrics"
	"github.com/contemplaapp/contempla-backend/pkg/migrate"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
	"github.com/contemplaapp/contempla-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	if err := run(logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(logg *logger.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrapping database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("running dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrapping redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	handler, err := buildRouter(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithField(ctx, "addr", addr)
	logg.Info(ctx, "starting api server")

	server := &http.Server{Addr: addr, Handler: handler}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func buildRouter(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	conn := dbClient.DB()
	planRepo := plans.NewRepository(conn)
	groupRepo := groups.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	planService, err := plans.NewService(planRepo)
	if err != nil {
		return nil, fmt.Errorf("creating plan service: %w", err)
	}
	coordinator, err := groups.NewService(dbClient, groupRepo, planRepo, events, logg)
	if err != nil {
		return nil, fmt.Errorf("creating group coordinator: %w", err)
	}
	referralService, err := referral.NewService(groupRepo, coordinator, logg)
	if err != nil {
		return nil, fmt.Errorf("creating referral service: %w", err)
	}
	ledgerService, err := ledger.NewService(dbClient, ledger.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("creating ledger service: %w", err)
	}
	cascade, err := commission.NewService(commission.NewRepository(conn), groupRepo, ledgerService, events, cfg.Commission, logg)
	if err != nil {
		return nil, fmt.Errorf("creating commission service: %w", err)
	}
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	paymentService, err := payments.NewService(dbClient, payments.NewRepository(conn), coordinator, groupRepo, planRepo, cascade, ledgerService, paymentMetrics, logg)
	if err != nil {
		return nil, fmt.Errorf("creating payment service: %w", err)
	}

	return routes.NewRouter(cfg, logg, dbClient, redisClient, planService, referralService, coordinator, paymentService, ledgerService, cascade), nil
}
