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
	"github.com/gimmescrapes/platform/pkg/emails"
	"github.com/gimmescrapes/platform/pkg/jobs"
	"github.com/gimmescrapes/platform/pkg/listings"
	"github.com/gimmescrapes/platform/pkg/observability/metrics"
	"github.com/gimmescrapes/platform/pkg/scraper"
	"github.com/gimmescrapes/platform/pkg/sources"
	"github.com/gimmescrapes/platform/pkg/worker"
)

func main() {
	logger.Init("worker-service")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	sourceRepo := sources.NewRepository(db)
	jobRepo := jobs.NewRepository(db)
	listingRepo := listings.NewRepository(db)
	emailRepo := emails.NewRepository(db)

	for name, migrate := range map[string]func() error{
		"sources":  sourceRepo.AutoMigrate,
		"jobs":     jobRepo.AutoMigrate,
		"listings": listingRepo.AutoMigrate,
		"emails":   emailRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("tables", name).Fatal("failed to migrate")
		}
	}

	fetcher := scraper.NewFetcher(cfg.ScrapeTimeout)
	opts := scraper.Options{
		Delay:    cfg.ScrapeRequestDelay,
		Timeout:  cfg.ScrapeTimeout,
		MaxPages: cfg.ScrapeMaxPages,
	}

	registry, err := scraper.NewRegistry(
		scraper.NewOlx(fetcher, opts),
		scraper.NewStoria(fetcher, opts),
		scraper.NewImobiliare(fetcher, opts),
	)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid scraper registry")
	}
	logger.Log.WithField("scrapers", registry.Names()).Info("Scraper registry initialized")

	reconciler := listings.NewReconciler(listingRepo)
	service := worker.NewService(sourceRepo, jobRepo, registry, reconciler)
	emailHandler := worker.NewEmailHandler(emailRepo)

	policy := kafka.DefaultRetryPolicy()
	scrapeConsumer := kafka.NewConsumer(kafka.ScrapeChannel, cfg.KafkaGroupID, policy)
	defer scrapeConsumer.Close()
	emailConsumer := kafka.NewConsumer(kafka.EmailChannel, cfg.KafkaGroupID, policy)
	defer emailConsumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := scrapeConsumer.Consume(ctx, service.HandleScrapeJob); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("scrape consumer error")
		}
	}()

	go func() {
		if err := emailConsumer.Consume(ctx, emailHandler.HandleEmailJob); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("email consumer error")
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler()).Methods(http.MethodGet)

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
		}).Info("Worker Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// A scrape cut off mid-flight leaves its job RUNNING on purpose; the
	// orchestrator's watchdog re-queues it once it goes stale.
	logger.Log.Info("Shutting down Worker Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("failed to close postgres")
	}

	logger.Log.Info("Worker Service stopped")
}
