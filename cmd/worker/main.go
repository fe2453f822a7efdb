package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"resume-critique/internal/bootstrap"
	"resume-critique/internal/shared/awsutil"
	"resume-critique/internal/shared/config"
	"resume-critique/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	sem := make(chan struct{}, max(1, cfg.WorkerConcurrency))
	var wg sync.WaitGroup

	switch cfg.QueueBackend {
	case "sqs":
		awsCfg, _, err := awsutil.Load(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		poller := &sqsPoller{
			client:            sqs.NewFromConfig(awsCfg),
			queueURL:          cfg.SQSQueueURL,
			visibilitySeconds: cfg.SQSVisibilitySecs,
			processor:         app.Pipeline,
		}
		telemetry.Info("worker.started", map[string]any{
			"backend":     "sqs",
			"queue":       cfg.SQSQueueURL,
			"concurrency": cfg.WorkerConcurrency,
			"visibility":  cfg.SQSVisibilitySecs,
		})
		poller.run(ctx, sem, &wg)
	case "amqp":
		telemetry.Info("worker.started", map[string]any{
			"backend":     "amqp",
			"queue":       cfg.AMQPQueue,
			"concurrency": cfg.WorkerConcurrency,
		})
		err := app.AMQP.Consume(ctx, cfg.WorkerConcurrency, func(ctx context.Context, d amqpDelivery) {
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				handleDelivery(ctx, app.Pipeline, d)
			}()
		})
		if err != nil {
			telemetry.Error("worker.consume_failed", map[string]any{"error": err.Error()})
		}
	default:
		log.Fatal("QUEUE_BACKEND must be sqs or amqp for the worker")
	}

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSecs) * time.Second
	telemetry.Info("worker.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
