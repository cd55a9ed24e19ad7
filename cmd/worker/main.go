package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkravchenko/groundedqa/internal/bootstrap"
	"github.com/mkravchenko/groundedqa/internal/config"
	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/observability/logging"
	"github.com/mkravchenko/groundedqa/internal/observability/metrics"
)

const serviceName = "groundedqa-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	extractorTimeout := time.Duration(cfg.ExtractorTimeoutSeconds) * time.Second

	ingestWorkers := max(cfg.IngestConcurrency, 1)
	ingestDone := make(chan error, ingestWorkers)
	for range ingestWorkers {
		go func() {
			ingestDone <- app.Bus.SubscribeIngest(ctx, func(handlerCtx context.Context, job domain.IngestJob) error {
				logging.WithCorrelation(logger, job.CorrelationID).Info("ingest job received", "document_id", job.DocumentID)
				if !job.EnqueuedAt.IsZero() {
					workerMetrics.ObserveQueueLag(serviceName, time.Since(job.EnqueuedAt))
				}
				workerMetrics.StartIngest()
				start := time.Now()

				jobCtx, cancel := context.WithTimeout(handlerCtx, extractorTimeout+10*time.Minute)
				defer cancel()
				err := app.Ingestor.HandleIngestJob(jobCtx, job)
				workerMetrics.FinishIngest(serviceName, time.Since(start), err)
				return err
			})
		}()
	}

	// Query handlers run as parallel queue-group members, like the ingest
	// handlers above (IngestConcurrency of them, one by default).
	queryWorkers := max(cfg.QueryConcurrency, 1)
	queryDone := make(chan error, queryWorkers)
	for range queryWorkers {
		go func() {
			queryDone <- app.Bus.SubscribeQuery(ctx, func(handlerCtx context.Context, job domain.QueryJob) error {
				logging.WithCorrelation(logger, job.CorrelationID).Info("query job received", "query_id", job.QueryID)
				start := time.Now()
				result, err := app.Querier.Answer(handlerCtx, job)
				iterations := 0
				if result != nil {
					iterations = result.IterationCount
				}
				workerMetrics.FinishQuery(serviceName, time.Since(start), iterations, err)
				return err
			})
		}()
	}

	logger.Info("worker started",
		"ingest_subject", cfg.NATSIngestSubject,
		"query_subject", cfg.NATSQuerySubject,
		"metrics_port", cfg.MetricsPort,
	)

	for range ingestWorkers + queryWorkers {
		select {
		case err := <-ingestDone:
			if err != nil {
				logger.Error("ingest subscription ended", "error", err)
			}
		case err := <-queryDone:
			if err != nil {
				logger.Error("query subscription ended", "error", err)
			}
		}
	}
}
