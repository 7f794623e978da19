package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/recommendation/internal/broker"
	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/consumer"
	"example.com/recommendation/internal/deadletter"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/generator"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/persistence/memory"
	"example.com/recommendation/internal/persistence/postgres"
	"example.com/recommendation/internal/persistence/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.LogConfig(), cfg.ServiceName+"-consumer", os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("consumer exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(cfg.ServiceName+"-consumer", cfg.TraceExporter, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	disposition, err := cfg.Disposition()
	if err != nil {
		return err
	}

	topo := cfg.Topology()
	declareCtx, declareCancel := context.WithTimeout(ctx, 30*time.Second)
	err = broker.Declare(declareCtx, cfg.BrokerList(), topo)
	declareCancel()
	if err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	gen, err := generator.NewClient(cfg.GeneratorConfig(), generator.WithLogger(logger))
	if err != nil {
		return err
	}

	var (
		store domain.RecommendationStore
		pool  *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewRecommendationStore(pool)
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	default:
		store = memory.NewRecommendationStore()
	}

	opts := []consumer.Option{consumer.WithLogger(logger), consumer.WithDisposition(disposition)}
	if disposition.Mode == consumer.ModeDeadLetter {
		opts = append(opts, consumer.WithDeadLetterSink(deadletter.NewStore(pool, cfg.DLQBaseDelay)))
	}

	handler := consumer.NewRecommendationHandler(gen, domain.NewRecommendationService(store, cfg.RecommendationDedupe), logger)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("consumer metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, queue := range topo.Queues() {
		for i := 0; i < max(cfg.ConsumerConcurrency, 1); i++ {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:         cfg.BrokerList(),
				GroupID:         cfg.ConsumerGroupID,
				Topic:           queue,
				MinBytes:        1e3,
				MaxBytes:        10e6,
				CommitInterval:  time.Second,
				RetentionTime:   24 * time.Hour,
				ReadLagInterval: -1,
			})
			proc, err := consumer.NewProcessor(reader, handler, opts...)
			if err != nil {
				_ = reader.Close()
				cancel()
				wg.Wait()
				return err
			}

			wg.Add(1)
			go func(queue string, worker int) {
				defer wg.Done()
				defer reader.Close()

				log := logger.With("queue", queue, "worker", worker, "group", cfg.ConsumerGroupID)
				log.Info("consumer started", "disposition", string(disposition.Mode))
				if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("consumer stopped with error", "error", err)
				}
			}(queue, i)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	wg.Wait()
	return nil
}
