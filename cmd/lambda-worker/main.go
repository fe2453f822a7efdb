package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"resume-critique/internal/bootstrap"
	"resume-critique/internal/shared/config"
	"resume-critique/internal/shared/metrics"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, app.Pipeline, event), nil
}

// processBatch reports only redeliverable failures back to SQS. Malformed payloads and final
// pipeline failures are consumed.
func processBatch(ctx context.Context, processor workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncJobsReceived()
		fields := map[string]any{"sqs_message_id": record.MessageId}

		err := workerproc.HandleMessage(ctx, processor, record.Body)
		switch {
		case err == nil:
			metrics.IncJobsCompleted()
			telemetry.Info("worker.submission.completed", fields)
		case workerproc.Unrecoverable(err):
			metrics.IncJobsDeletedUnrecoverable()
			fields["error"] = err.Error()
			telemetry.Error("worker.submission.unrecoverable", fields)
		case workerproc.ShouldRedeliver(err):
			metrics.IncJobsFailed()
			fields["error"] = err.Error()
			fields["redeliver"] = true
			telemetry.Warn("worker.submission.failed", fields)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		default:
			metrics.IncJobsFailed()
			fields["error"] = err.Error()
			telemetry.Error("worker.submission.failed", fields)
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
