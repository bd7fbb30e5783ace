package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/gimmescrapes/platform/pkg/common/config"
	"github.com/gimmescrapes/platform/pkg/common/database"
	"github.com/gimmescrapes/platform/pkg/common/kafka"
	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/common/middleware"
	"github.com/gimmescrapes/platform/pkg/jobs"
	"github.com/gimmescrapes/platform/pkg/observability/metrics"
	"github.com/gimmescrapes/platform/pkg/orchestrator"
	"github.com/gimmescrapes/platform/pkg/sources"
)

func main() {
	logger.Init("orchestrator-service")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	sourceRepo := sources.NewRepository(db)
	jobRepo := jobs.NewRepository(db)

	if err := sourceRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate sources")
	}
	if err := jobRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate jobs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orchestrator.SeedSources(ctx, sourceRepo, cfg.SourcesFile); err != nil {
		logger.Log.WithError(err).Fatal("failed to seed sources")
	}

	producer := kafka.NewProducer(kafka.ScrapeChannel)
	defer producer.Close()

	service := orchestrator.NewService(sourceRepo, jobRepo, producer)
	locker := orchestrator.NewRedisLocker(database.GetRedis())

	scheduler := orchestrator.NewScheduler(sourceRepo, producer, locker,
		cfg.SchedulerInterval, cfg.SchedulerLockTTL)
	go scheduler.Run(ctx)

	watchdog := orchestrator.NewWatchdog(sourceRepo, jobRepo, producer,
		cfg.WatchdogInterval, cfg.StaleJobThreshold)
	go watchdog.Run(ctx)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.CORS)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Logging)
	orchestrator.NewHTTPHandler(service).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Orchestrator Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Orchestrator Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("failed to close redis")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("failed to close postgres")
	}

	logger.Log.Info("Orchestrator Service stopped")
}
