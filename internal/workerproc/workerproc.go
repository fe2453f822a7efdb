// Package workerproc decodes queued submission jobs and resumes them through the pipeline.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"resume-critique/internal/pipeline"
	"resume-critique/internal/queue"
	"resume-critique/internal/submissions"
)

// Processor finishes a staged submission.
type Processor interface {
	Resume(ctx context.Context, job pipeline.Job, progress pipeline.Progress) (submissions.Record, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingField indicates a message without a submission id, owner or document path.
type ErrMissingField struct {
	Meta      MessageMeta
	Field     string
	RequestID string
}

func (e ErrMissingField) Error() string { return "missing " + e.Field }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	SubmissionID string
	RequestID    string
	Err          error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process submission"
	}
	return "process submission: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	switch {
	case strings.TrimSpace(msg.SubmissionID) == "":
		return msg, meta, ErrMissingField{Meta: meta, Field: "submission id", RequestID: msg.RequestID}
	case strings.TrimSpace(msg.Owner) == "":
		return msg, meta, ErrMissingField{Meta: meta, Field: "owner", RequestID: msg.RequestID}
	case strings.TrimSpace(msg.DocumentPath) == "":
		return msg, meta, ErrMissingField{Meta: meta, Field: "document path", RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Unrecoverable reports whether err comes from a payload that can never be processed.
func Unrecoverable(err error) bool {
	switch err.(type) {
	case ErrEmptyBody, ErrDecode, ErrMissingField:
		return true
	}
	return false
}

// ShouldRedeliver reports whether a processing error is worth another delivery: storage
// outages and inference timeouts. Every other failure is final for the submission.
func ShouldRedeliver(err error) bool {
	var procErr ErrProcess
	if !errors.As(err, &procErr) {
		return false
	}
	failure, ok := pipeline.AsFailure(procErr.Err)
	if !ok {
		return false
	}
	return failure.Code == pipeline.CodeStorage || failure.Code == pipeline.CodeInferenceTimeout
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// JobFromMessage maps a queue message onto a pipeline job.
func JobFromMessage(msg queue.Message) pipeline.Job {
	return pipeline.Job{
		ID:             msg.SubmissionID,
		Owner:          msg.Owner,
		DocumentPath:   msg.DocumentPath,
		DocumentName:   msg.DocumentName,
		CompanyName:    msg.CompanyName,
		JobTitle:       msg.JobTitle,
		JobDescription: msg.JobDescription,
	}
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, processor Processor, body string) error {
	if processor == nil {
		return errors.New("submission processor not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	ctxWithRequest := pipeline.WithRequestID(ctx, msg.RequestID)
	if _, err := processor.Resume(ctxWithRequest, JobFromMessage(msg), nil); err != nil {
		return ErrProcess{SubmissionID: msg.SubmissionID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
