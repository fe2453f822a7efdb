// Package intake accepts resume submissions over HTTP and serves their records and artifacts.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"resume-critique/internal/pipeline"
	"resume-critique/internal/queue"
	"resume-critique/internal/shared/storage/object"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
	"resume-critique/internal/submissions"
	"resume-critique/internal/wipe"
)

// MaxDocumentBytes caps an uploaded resume.
const MaxDocumentBytes = 20 << 20

// Runner is the part of the orchestrator intake drives.
type Runner interface {
	NewID() string
	RunWithID(ctx context.Context, id string, sub pipeline.Submission, progress pipeline.Progress) (submissions.Record, error)
	Stage(ctx context.Context, sub pipeline.Submission, progress pipeline.Progress) (pipeline.Job, error)
}

// RecordReader reads an owner's submission records.
type RecordReader interface {
	Get(ctx context.Context, owner, id string) (submissions.Record, error)
	List(ctx context.Context, owner string) ([]submissions.Record, error)
}

// Wiper removes everything an owner has stored.
type Wiper interface {
	Wipe(ctx context.Context, owner string) (wipe.Report, error)
}

// Artifact kinds that can be streamed back.
const (
	ArtifactDocument = "document"
	ArtifactPreview  = "preview"
)

// Outcome is what a submission returns to the caller right away.
type Outcome struct {
	ID       string
	Mode     Mode
	Record   *submissions.Record
	Progress []pipeline.Step
}

// Service coordinates the orchestrator, record store, artifact store and queue.
type Service struct {
	Pipeline  Runner
	Records   RecordReader
	Artifacts object.Store
	Queue     queue.Client
	Wiper     Wiper
	Now       func() time.Time
	// NoBackground is set by processes frozen between requests. Async submissions are then
	// queued when a queue exists and run inline otherwise.
	NoBackground bool

	wg sync.WaitGroup
}

// Submit validates sub and runs it in the requested mode. In sync mode a pipeline failure is
// returned as a *pipeline.Failure alongside the partial outcome.
func (s *Service) Submit(ctx context.Context, sub pipeline.Submission, mode Mode) (Outcome, error) {
	if err := validate(&sub); err != nil {
		return Outcome{}, err
	}

	if mode == ModeAsync && s.NoBackground {
		mode = ModeSync
		if s.Queue != nil {
			mode = ModeQueue
		}
	}

	switch mode {
	case ModeAsync:
		return s.submitAsync(ctx, sub), nil
	case ModeQueue:
		return s.submitQueued(ctx, sub)
	default:
		return s.submitSync(ctx, sub)
	}
}

func validate(sub *pipeline.Submission) error {
	if strings.TrimSpace(sub.Owner) == "" {
		return fmt.Errorf("%w: identity required", ErrInvalidInput)
	}
	if len(sub.Document) == 0 {
		return fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if len(sub.Document) > MaxDocumentBytes {
		return fmt.Errorf("%w: file exceeds %d MB", ErrInvalidInput, MaxDocumentBytes>>20)
	}
	name, err := util.SanitizeFileName(sub.FileName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	sub.FileName = name
	sub.CompanyName = strings.TrimSpace(sub.CompanyName)
	sub.JobTitle = strings.TrimSpace(sub.JobTitle)
	sub.JobDescription = strings.TrimSpace(sub.JobDescription)
	return nil
}

func (s *Service) submitSync(ctx context.Context, sub pipeline.Submission) (Outcome, error) {
	var rec pipeline.Recorder
	id := s.Pipeline.NewID()
	record, err := s.Pipeline.RunWithID(ctx, id, sub, rec.Observe)
	out := Outcome{ID: id, Mode: ModeSync, Progress: rec.Steps}
	if err != nil {
		return out, err
	}
	out.Record = &record
	return out, nil
}

func (s *Service) submitAsync(ctx context.Context, sub pipeline.Submission) Outcome {
	id := s.Pipeline.NewID()
	bg := pipeline.BackgroundWithRequestID(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("submission.async_panic", map[string]any{
					"submission_id": id,
					"request_id":    pipeline.RequestIDFromContext(bg),
					"error":         fmt.Sprint(rec),
				})
			}
		}()
		// Failures are already logged and recorded by the orchestrator.
		_, _ = s.Pipeline.RunWithID(bg, id, sub, nil)
	}()

	return Outcome{ID: id, Mode: ModeAsync}
}

func (s *Service) submitQueued(ctx context.Context, sub pipeline.Submission) (Outcome, error) {
	if s.Queue == nil {
		return Outcome{}, queue.ErrNotConfigured
	}

	var rec pipeline.Recorder
	job, err := s.Pipeline.Stage(ctx, sub, rec.Observe)
	out := Outcome{ID: job.ID, Mode: ModeQueue, Progress: rec.Steps}
	if err != nil {
		return out, err
	}

	msg := queue.Message{
		SubmissionID:   job.ID,
		Owner:          job.Owner,
		DocumentPath:   job.DocumentPath,
		DocumentName:   job.DocumentName,
		CompanyName:    job.CompanyName,
		JobTitle:       job.JobTitle,
		JobDescription: job.JobDescription,
		RequestID:      pipeline.RequestIDFromContext(ctx),
		EnqueuedAt:     s.now().UTC().Format(time.RFC3339),
		Version:        queue.MessageVersion,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		telemetry.Error("submission.enqueue_failed", map[string]any{
			"submission_id": job.ID,
			"request_id":    msg.RequestID,
			"error":         util.SanitizeError(err),
		})
		return out, fmt.Errorf("enqueue submission: %w", err)
	}
	telemetry.Info("submission.enqueued", map[string]any{
		"submission_id": job.ID,
		"request_id":    msg.RequestID,
	})
	return out, nil
}

// Wait blocks until in-process async runs finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns one record of owner.
func (s *Service) Get(ctx context.Context, owner, id string) (submissions.Record, error) {
	if strings.TrimSpace(id) == "" {
		return submissions.Record{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	rec, err := s.Records.Get(ctx, owner, id)
	if errors.Is(err, submissions.ErrNotFound) {
		return submissions.Record{}, ErrNotFound
	}
	return rec, err
}

// List returns owner's records, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]submissions.Record, error) {
	return s.Records.List(ctx, owner)
}

// OpenArtifact streams the stored document or preview of a submission. The caller closes
// the reader.
func (s *Service) OpenArtifact(ctx context.Context, owner, id, kind string) (io.ReadCloser, string, error) {
	rec, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, "", err
	}

	var p string
	switch kind {
	case ArtifactDocument:
		p = rec.ResumePath
	case ArtifactPreview:
		p = rec.ImagePath
	default:
		return nil, "", fmt.Errorf("%w: unknown artifact %q", ErrInvalidInput, kind)
	}
	if p == "" {
		return nil, "", ErrNotFound
	}

	rc, err := s.Artifacts.Read(ctx, p)
	if errors.Is(err, object.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	_, name := object.SplitName(path.Base(p))
	return rc, name, nil
}

// Wipe deletes all artifacts and records of owner.
func (s *Service) Wipe(ctx context.Context, owner string) (wipe.Report, error) {
	if strings.TrimSpace(owner) == "" {
		return wipe.Report{}, fmt.Errorf("%w: identity required", ErrInvalidInput)
	}
	return s.Wiper.Wipe(ctx, owner)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
