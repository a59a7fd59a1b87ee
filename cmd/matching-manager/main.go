// cmd/matching-manager/main.go
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

	"go.uber.org/zap"

	"carejoa-matching/internal/common/camunda"
	"carejoa-matching/internal/common/config"
	"carejoa-matching/internal/common/database"
	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/common/observability"
	"carejoa-matching/internal/matching"
	"carejoa-matching/internal/matching/store"

	amw "carejoa-matching/internal/workers/matching/adapt-match-weights"
	mf "carejoa-matching/internal/workers/matching/match-facilities"
	rmf "carejoa-matching/internal/workers/matching/record-match-feedback"
)

const serviceName = "matching-manager"

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: serviceName,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting matching manager...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(serviceName)
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	rdb := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	readiness := []readinessCheck{
		{name: "postgres", check: pg.Ping},
		{name: "redis", check: rdb.Ping},
	}

	// --- Facility catalog ---
	var catalog store.CatalogReader
	switch cfg.Catalog.Source {
	case config.CatalogSourceElasticsearch:
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
		catalog = store.NewElasticsearchCatalog(esClient.Client, cfg.Catalog.Index, cfg.Catalog.PageSize)
		readiness = append(readiness, readinessCheck{name: "elasticsearch", check: esClient.Ping})
	default:
		catalog = store.NewPostgresCatalog(pg.DB)
	}
	if cfg.Catalog.CacheTTL > 0 {
		catalog = store.NewCachedCatalog(catalog, rdb.Client, time.Duration(cfg.Catalog.CacheTTL)*time.Second, log)
	}
	zapLog.Info("Facility catalog ready",
		zap.String("source", cfg.Catalog.Source),
		zap.Int("cacheTTLSeconds", cfg.Catalog.CacheTTL),
	)

	// --- Weight profiles ---
	profiles, err := matching.NewProfileStore(
		matching.ProfileFromConfig(cfg.Matching.InitialWeights, cfg.Matching.NeutralValues),
		store.NewRedisProfileStore(rdb.Client, ""),
	)
	if err != nil {
		zapLog.Fatal("invalid initial weight profile", zap.Error(err))
	}
	if err := profiles.Restore(ctx); err != nil {
		zapLog.Fatal("weight profile restore failed", zap.Error(err))
	}
	matching.ObserveProfile(profiles.Active())
	zapLog.Info("Weight profile active", zap.Int64("version", profiles.Active().Version))

	// --- Engine and adaptation ---
	feedback := store.NewPostgresFeedback(pg.DB, cfg.Feedback.Table, log)
	engine := matching.NewEngine(
		matching.EngineConfigFrom(cfg.Matching),
		catalog,
		profiles,
		matching.WithFeedback(feedback, feedback),
		matching.WithObservability(obs),
		matching.WithLogger(log),
	)

	adaptation := cfg.Matching.Adaptation
	scheduler := matching.NewAdaptationScheduler(
		matching.NewAdapter(matching.AdapterConfigFrom(adaptation)),
		profiles,
		feedback,
		matching.SchedulerConfig{
			Interval:     adaptation.IntervalDuration(),
			HistoryLimit: adaptation.HistoryLimit,
			HistoryAge:   time.Duration(adaptation.HistoryDays) * 24 * time.Hour,
		},
		log,
	)
	if !adaptation.Disabled {
		scheduler.Start(ctx)
	}

	// --- Zeebe workers ---
	zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")
	readiness = append(readiness, readinessCheck{name: "zeebe", check: zeebe.HealthCheck})

	workers := camunda.NewWorkerSet(zeebe.GetClient(), log)

	if cfg.Workers[mf.TaskType].Enabled {
		wc := mf.ConfigFrom(cfg)
		handler, err := mf.NewHandler(wc, engine, log)
		if err != nil {
			zapLog.Fatal("failed to create match-facilities handler", zap.Error(err))
		}
		if err := workers.Open(mf.TaskType, camunda.WorkerOptions{MaxJobsActive: wc.MaxJobsActive, Timeout: wc.Timeout}, handler); err != nil {
			zapLog.Fatal("failed to open worker", zap.String("taskType", mf.TaskType), zap.Error(err))
		}
	}

	if cfg.Workers[rmf.TaskType].Enabled {
		wc := rmf.ConfigFrom(cfg)
		handler, err := rmf.NewHandler(wc, engine, log)
		if err != nil {
			zapLog.Fatal("failed to create record-match-feedback handler", zap.Error(err))
		}
		if err := workers.Open(rmf.TaskType, camunda.WorkerOptions{MaxJobsActive: wc.MaxJobsActive, Timeout: wc.Timeout}, handler); err != nil {
			zapLog.Fatal("failed to open worker", zap.String("taskType", rmf.TaskType), zap.Error(err))
		}
	}

	if cfg.Workers[amw.TaskType].Enabled {
		wc := amw.ConfigFrom(cfg)
		handler, err := amw.NewHandler(wc, scheduler, log)
		if err != nil {
			zapLog.Fatal("failed to create adapt-match-weights handler", zap.Error(err))
		}
		if err := workers.Open(amw.TaskType, camunda.WorkerOptions{MaxJobsActive: wc.MaxJobsActive, Timeout: wc.Timeout}, handler); err != nil {
			zapLog.Fatal("failed to open worker", zap.String("taskType", amw.TaskType), zap.Error(err))
		}
	}
	zapLog.Info("Workers registered", zap.Strings("taskTypes", workers.TaskTypes()))

	// --- Health, Metrics & Admin Server ---
	admin := &adminServer{
		weights:  scheduler,
		profiles: profiles,
		token:    cfg.Server.AdminToken,
		checks:   readiness,
		log:      zapLog.Named("admin"),
		now:      time.Now,
	}
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           admin.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics/Admin server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics/Admin server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	workers.Close()
	scheduler.Stop()
	cancel()

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Matching manager stopped gracefully")
}
