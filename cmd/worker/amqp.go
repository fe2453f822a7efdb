package main

import (
	"context"

	"resume-critique/internal/queue"
	"resume-critique/internal/shared/metrics"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/workerproc"
)

type amqpDelivery = queue.Delivery

// handleDelivery acks finished and unrecoverable messages. A redeliverable failure is
// requeued once; a message that already came back is dropped.
func handleDelivery(ctx context.Context, processor workerproc.Processor, d amqpDelivery) {
	metrics.IncJobsReceived()

	decoded, meta, err := workerproc.ParseMessage(d.Body)
	if err != nil {
		telemetry.Error("worker.submission.unrecoverable", map[string]any{
			"body_len":    meta.BodyLen,
			"body_sha256": meta.BodySHA,
			"error":       err.Error(),
		})
		if settle(d.Ack()) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	fields := map[string]any{
		"submission_id": decoded.SubmissionID,
		"request_id":    decoded.RequestID,
		"redelivered":   d.Redelivered,
	}
	telemetry.Info("worker.submission.received", fields)

	err = workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), processor, d.Body)
	if err != nil {
		metrics.IncJobsFailed()
		fields["error"] = err.Error()
		if workerproc.ShouldRedeliver(err) && !d.Redelivered {
			fields["redeliver"] = true
			telemetry.Warn("worker.submission.failed", fields)
			settle(d.Nack(true))
			return
		}
		telemetry.Error("worker.submission.failed", fields)
		settle(d.Ack())
		return
	}

	if settle(d.Ack()) {
		telemetry.Info("worker.submission.completed", fields)
		metrics.IncJobsCompleted()
	}
}

func settle(err error) bool {
	if err != nil {
		telemetry.Error("worker.submission.settle_failed", map[string]any{"error": err.Error()})
		return false
	}
	return true
}
