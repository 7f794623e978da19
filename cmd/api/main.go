package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/recommendation/internal/api"
	"example.com/recommendation/internal/auth"
	"example.com/recommendation/internal/broker"
	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/persistence/memory"
	"example.com/recommendation/internal/persistence/postgres"
	"example.com/recommendation/internal/persistence/sqlite"
	httptransport "example.com/recommendation/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.LogConfig(), cfg.ServiceName+"-api", os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(cfg.ServiceName+"-api", cfg.TraceExporter, logger)
	if err != nil {
		logger.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	activities, recommendations, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		logger.Error("failed to open stores", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStores()

	topo := cfg.Topology()
	producer := broker.NewKafkaProducer(cfg.BrokerList())
	defer producer.Close()
	publisher := broker.NewPublisher(topo, producer)

	handler := api.NewHandler(
		domain.NewActivityService(activities, publisher),
		domain.NewRecommendationService(recommendations, cfg.RecommendationDedupe),
		logger,
	)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	router := httptransport.NewRouter(cfg.ServiceName+"-api", logger, authMiddleware.Wrap)
	handler.RegisterRoutes(router)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, router)
	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		logger.Info("api listening", "address", cfg.HTTPAddress, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-shutdownCh:
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}
}

// openStores builds the repositories for the configured driver. The sqlite driver only backs
// recommendations; activities then live in memory.
func openStores(ctx context.Context, cfg config.Config) (domain.ActivityRepository, domain.RecommendationStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return postgres.NewActivityRepository(pool), postgres.NewRecommendationStore(pool), pool.Close, nil
	case config.StoreSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return memory.NewActivityRepository(), store, func() { _ = store.Close() }, nil
	default:
		return memory.NewActivityRepository(), memory.NewRecommendationStore(), func() {}, nil
	}
}
