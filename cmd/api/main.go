package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidaplena/intake-ai-platform/cmd/mainconfig"
	"github.com/vidaplena/intake-ai-platform/internal/api/router"
	"github.com/vidaplena/intake-ai-platform/internal/app/bootstrap"
	appconfig "github.com/vidaplena/intake-ai-platform/internal/config"
	"github.com/vidaplena/intake-ai-platform/internal/intake"
	"github.com/vidaplena/intake-ai-platform/internal/leads"
	"github.com/vidaplena/intake-ai-platform/internal/observability/metrics"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting intake-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	db, err := bootstrap.BuildPostgres(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	m := metrics.NewIntakeMetrics(nil)

	engine, engineCleanup, err := bootstrap.BuildIntakeEngine(ctx, cfg, awsCfg, db, m, logger)
	if err != nil {
		logger.Error("failed to build intake engine", "error", err)
		os.Exit(1)
	}
	defer engineCleanup()

	// The API either enqueues jobs for the worker fleet (SQS) or processes
	// inline (memory queue / no queue configured).
	var handlerOpts []intake.HandlerOption
	if !cfg.UseMemoryQueue && cfg.IntakeQueueURL != "" {
		sqsClient := sqs.NewFromConfig(awsCfg)
		queue := intake.NewSQSQueue(sqsClient, cfg.IntakeQueueURL)
		publisher := intake.NewPublisher(queue, logger)
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		jobStore := intake.NewJobStore(dynamoClient, cfg.IntakeJobsTable, logger)
		handlerOpts = append(handlerOpts, intake.WithAsyncProcessing(publisher, jobStore))
		logger.Info("async intake processing enabled", "queue", cfg.IntakeQueueURL)
	}
	intakeHandler := intake.NewHandler(engine, logger, handlerOpts...)

	var leadsRepo leads.Repository
	if db != nil {
		pool, poolErr := bootstrap.BuildPgxPool(ctx, cfg)
		if poolErr != nil {
			logger.Error("failed to build pgx pool", "error", poolErr)
			os.Exit(1)
		}
		defer pool.Close()
		leadsRepo = leads.NewPostgresRepository(pool)
	} else {
		leadsRepo = leads.NewInMemoryRepository()
	}
	leadsHandler := leads.NewHandler(leadsRepo, logger)

	routerCfg := &router.Config{
		Logger:           logger,
		IntakeHandler:    intakeHandler,
		LeadsHandler:     leadsHandler,
		MetricsHandler:   promhttp.Handler(),
		MessageRateLimit: 5,
		MessageRateBurst: 10,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
