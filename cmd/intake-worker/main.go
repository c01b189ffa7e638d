package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/vidaplena/intake-ai-platform/cmd/mainconfig"
	"github.com/vidaplena/intake-ai-platform/internal/app/bootstrap"
	appconfig "github.com/vidaplena/intake-ai-platform/internal/config"
	"github.com/vidaplena/intake-ai-platform/internal/intake"
	"github.com/vidaplena/intake-ai-platform/internal/observability/metrics"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting intake worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	sqsClient := sqs.NewFromConfig(awsCfg)
	queue := intake.NewSQSQueue(sqsClient, cfg.IntakeQueueURL)
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	jobStore := intake.NewJobStore(dynamoClient, cfg.IntakeJobsTable, logger)

	worker := intake.NewWorker(
		engine,
		queue,
		jobStore,
		logger,
		intake.WithWorkerCount(cfg.WorkerCount),
	)

	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down intake worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("intake worker stopped")
	case <-doneCtx.Done():
		logger.Error("intake worker shutdown timed out", "error", doneCtx.Err())
	}
}
