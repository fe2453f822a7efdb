package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"resume-critique/internal/shared/metrics"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/workerproc"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type sqsPoller struct {
	client            sqsAPI
	queueURL          string
	visibilitySeconds int
	processor         workerproc.Processor
}

func (p *sqsPoller) run(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(p.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(p.visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, p.client, p.queueURL, p.processor, m)
			}(msg)
		}
	}
}

// handleMessage deletes the message unless the failure is worth a redelivery, in which case
// SQS makes it visible again after the visibility timeout.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, processor workerproc.Processor, msg sqstypes.Message) {
	metrics.IncJobsReceived()
	body := aws.ToString(msg.Body)

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, decoded.SubmissionID, decoded.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.submission.unrecoverable", fields)
		if deleteMessage(ctx, client, queueURL, msg, decoded.SubmissionID, decoded.RequestID) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	telemetry.Info("worker.submission.received", baseFields(msg, decoded.SubmissionID, decoded.RequestID))

	err = workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), processor, body)
	if err != nil {
		metrics.IncJobsFailed()
		fields := baseFields(msg, decoded.SubmissionID, decoded.RequestID)
		fields["error"] = err.Error()
		if workerproc.ShouldRedeliver(err) {
			fields["redeliver"] = true
			telemetry.Warn("worker.submission.failed", fields)
			return
		}
		telemetry.Error("worker.submission.failed", fields)
		deleteMessage(ctx, client, queueURL, msg, decoded.SubmissionID, decoded.RequestID)
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.SubmissionID, decoded.RequestID) {
		telemetry.Info("worker.submission.completed", baseFields(msg, decoded.SubmissionID, decoded.RequestID))
		metrics.IncJobsCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, submissionID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, submissionID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.submission.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, submissionID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.submission.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, submissionID, requestID string) map[string]any {
	fields := map[string]any{
		"submission_id":  submissionID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
