package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hannguyendd/ChangeCapture/internal/config"
	"github.com/hannguyendd/ChangeCapture/internal/engine"
	esengine "github.com/hannguyendd/ChangeCapture/internal/engine/elasticsearch"
	"github.com/hannguyendd/ChangeCapture/internal/engine/memory"
	"github.com/hannguyendd/ChangeCapture/internal/event"
	handler "github.com/hannguyendd/ChangeCapture/internal/handler/http"
	"github.com/hannguyendd/ChangeCapture/internal/indexer"
	"github.com/hannguyendd/ChangeCapture/internal/service"
	"github.com/hannguyendd/ChangeCapture/pkg/health"
	pkgkafka "github.com/hannguyendd/ChangeCapture/pkg/kafka"
)

// idempotencyTTL bounds how long processed event IDs are remembered for
// duplicate suppression.
const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the search service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	consumers  []*pkgkafka.Consumer
	dlq        *pkgkafka.DLQProducer
	redis      *redis.Client
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize search engine based on configuration.
	var eng engine.SearchEngine
	var esEng *esengine.Engine
	switch cfg.SearchEngine {
	case "elasticsearch":
		var err error
		esEng, err = esengine.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = esEng
		logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
	default:
		eng = memory.New()
		logger.Info("in-memory search engine initialized")
	}

	// Make sure the index and its mapping exist. A failure here is logged
	// and the service starts anyway: queries degrade to empty results and
	// Elasticsearch creates the index on the first indexed document.
	if err := eng.EnsureIndex(ctx); err != nil {
		logger.Error("failed to ensure search index, continuing degraded",
			slog.String("error", err.Error()),
		)
	}

	// Build the service layer.
	searchService := service.NewSearchService(eng, logger, cfg.CatalogServiceURL)
	productIndexer := indexer.New(eng, logger)

	app := &App{
		cfg:    cfg,
		logger: logger,
	}

	// Kafka consumers with duplicate suppression and a dead letter queue.
	if cfg.ConsumeEvents {
		var store pkgkafka.IdempotencyStore
		if cfg.IdempotencyBackend == "redis" {
			app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			store = pkgkafka.NewRedisIdempotencyStore(app.redis, idempotencyTTL)
			logger.Info("redis idempotency store initialized", slog.String("addr", cfg.RedisAddr))
		} else {
			store = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
		}

		app.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

		eventConsumer := event.NewConsumer(productIndexer, logger)
		handle := pkgkafka.IdempotentHandler(store, eventConsumer.Handle, logger)

		topics := []string{
			event.TopicProductCreated,
			event.TopicProductUpdated,
			event.TopicProductDeleted,
		}
		for _, topic := range topics {
			consumerCfg := pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  cfg.KafkaGroupID,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6, // 10 MB
			}
			c := pkgkafka.NewConsumer(consumerCfg, handle, app.dlq, logger)
			app.consumers = append(app.consumers, c)
		}
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("group_id", cfg.KafkaGroupID),
			slog.Int("topic_count", len(topics)),
		)
	}

	// Health checks.
	// All backends are non-critical: reads degrade to empty results and
	// unprocessed events stay on the broker, so the service keeps serving.
	healthHandler := health.NewHandler()
	if esEng != nil {
		healthHandler.RegisterNonCritical("elasticsearch", esEng.Ping)
	}
	if cfg.ConsumeEvents {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}
	if app.redis != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		})
	}

	// HTTP router.
	router := handler.NewRouter(searchService, healthHandler, logger)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	// Start Kafka consumers in background goroutines.
	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
