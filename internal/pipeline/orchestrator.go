// Package pipeline sequences one resume submission from upload to stored feedback.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-critique/internal/feedback"
	"resume-critique/internal/inference"
	"resume-critique/internal/rasterize"
	"resume-critique/internal/shared/metrics"
	"resume-critique/internal/shared/storage/object"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
	"resume-critique/internal/submissions"
)

// Rasterizer converts a document into a preview image.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc []byte) (rasterize.Result, error)
}

// RecordWriter persists whole submission records.
type RecordWriter interface {
	Put(ctx context.Context, owner string, rec *submissions.Record) error
}

// Deps is everything the orchestrator talks to. Nothing is read from package state.
type Deps struct {
	Artifacts      object.Store
	Records        RecordWriter
	Rasterizer     Rasterizer
	Inference      inference.Client
	StoreGuard     Guard
	InferenceGuard Guard
	NewID          func() string
	Now            func() time.Time
}

// Submission is one user request: a document plus the job context.
type Submission struct {
	Owner          string
	FileName       string
	Document       []byte
	CompanyName    string
	JobTitle       string
	JobDescription string
}

// Job resumes a submission whose document is already stored.
type Job struct {
	ID             string
	Owner          string
	DocumentPath   string
	DocumentName   string
	CompanyName    string
	JobTitle       string
	JobDescription string
}

// Orchestrator runs submissions through the state machine. Steps of one submission run
// strictly in order; separate submissions share nothing but Deps.
type Orchestrator struct {
	deps Deps
}

// New builds an Orchestrator, filling in id and clock defaults.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Artifacts == nil {
		return nil, errors.New("pipeline: artifact store is required")
	}
	if deps.Records == nil {
		return nil, errors.New("pipeline: record store is required")
	}
	if deps.Rasterizer == nil {
		return nil, errors.New("pipeline: rasterizer is required")
	}
	if deps.Inference == nil {
		return nil, errors.New("pipeline: inference client is required")
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.StoreGuard.Name == "" {
		deps.StoreGuard.Name = "store"
	}
	if deps.InferenceGuard.Name == "" {
		deps.InferenceGuard.Name = "inference"
	}
	return &Orchestrator{deps: deps}, nil
}

// NewID returns a fresh submission id.
func (o *Orchestrator) NewID() string {
	return o.deps.NewID()
}

type run struct {
	o             *Orchestrator
	owner         string
	rec           submissions.Record
	progress      Progress
	startedAt     time.Time
	pendingStored bool
}

// Run executes every step for sub and returns the final record. On failure the error is a
// *Failure and the returned record holds whatever was produced before the failing step.
func (o *Orchestrator) Run(ctx context.Context, sub Submission, progress Progress) (submissions.Record, error) {
	return o.RunWithID(ctx, o.deps.NewID(), sub, progress)
}

// RunWithID is Run with a caller-chosen id, used when the id is handed out before the run.
func (o *Orchestrator) RunWithID(ctx context.Context, id string, sub Submission, progress Progress) (submissions.Record, error) {
	ctx = detach(ctx)
	r := o.begin(ctx, id, sub.Owner, sub.CompanyName, sub.JobTitle, sub.JobDescription, progress)
	if err := r.uploadDocument(ctx, sub.FileName, sub.Document); err != nil {
		return r.rec, err
	}
	return r.analyze(ctx, sub.FileName, sub.Document)
}

// Stage performs only the document upload and returns a Job the rest of the run can be
// resumed from, typically in another process.
func (o *Orchestrator) Stage(ctx context.Context, sub Submission, progress Progress) (Job, error) {
	ctx = detach(ctx)
	r := o.begin(ctx, o.deps.NewID(), sub.Owner, sub.CompanyName, sub.JobTitle, sub.JobDescription, progress)
	if err := r.uploadDocument(ctx, sub.FileName, sub.Document); err != nil {
		return Job{ID: r.rec.ID}, err
	}
	return Job{
		ID:             r.rec.ID,
		Owner:          sub.Owner,
		DocumentPath:   r.rec.ResumePath,
		DocumentName:   sub.FileName,
		CompanyName:    sub.CompanyName,
		JobTitle:       sub.JobTitle,
		JobDescription: sub.JobDescription,
	}, nil
}

// Resume loads a staged document and runs the remaining steps.
func (o *Orchestrator) Resume(ctx context.Context, job Job, progress Progress) (submissions.Record, error) {
	if strings.TrimSpace(job.ID) == "" || strings.TrimSpace(job.DocumentPath) == "" {
		return submissions.Record{}, errors.New("pipeline: job id and document path are required")
	}
	ctx = detach(ctx)
	r := o.begin(ctx, job.ID, job.Owner, job.CompanyName, job.JobTitle, job.JobDescription, progress)
	r.rec.ResumePath = job.DocumentPath

	var doc []byte
	err := o.deps.StoreGuard.Do(ctx, "read_document", func(ctx context.Context) error {
		rc, err := o.deps.Artifacts.Read(ctx, job.DocumentPath)
		if err != nil {
			return err
		}
		defer rc.Close()
		doc, err = io.ReadAll(rc)
		return err
	})
	if err != nil {
		return r.rec, r.fail(ctx, StateConvertingPreview, ReasonLoadDocument, CodeStorage, err)
	}
	return r.analyze(ctx, job.DocumentName, doc)
}

// detach drops the caller's cancellation and deadline but keeps its values, so a started run
// always reaches a terminal state. Per-call deadlines come from the guards.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (o *Orchestrator) begin(ctx context.Context, id, owner, company, title, description string, progress Progress) *run {
	now := o.deps.Now().UTC()
	metrics.IncSubmissionStarted()
	r := &run{
		o:     o,
		owner: owner,
		rec: submissions.Record{
			ID:             id,
			CompanyName:    company,
			JobTitle:       title,
			JobDescription: description,
			Status:         submissions.StatusPending,
			CreatedAt:      now,
		},
		progress:  progress,
		startedAt: now,
	}
	r.enter(ctx, StateIdle)
	return r
}

func (r *run) enter(ctx context.Context, state State) {
	status := Narration(state)
	telemetry.Info("submission.state", map[string]any{
		"submission_id": r.rec.ID,
		"request_id":    RequestIDFromContext(ctx),
		"owner_hash":    util.ShortHash(r.owner),
		"state":         string(state),
	})
	if r.progress != nil && status != "" {
		r.progress(state, status)
	}
}

func (r *run) fail(ctx context.Context, state State, reason, code string, cause error) error {
	failure := &Failure{State: state, Reason: util.SanitizeError(errors.New(reason)), Code: code, Err: cause}

	fields := map[string]any{
		"submission_id": r.rec.ID,
		"request_id":    RequestIDFromContext(ctx),
		"owner_hash":    util.ShortHash(r.owner),
		"state":         string(StateFailed),
		"at_state":      string(state),
		"code":          code,
		"reason":        failure.Reason,
		"error":         util.SanitizeError(cause),
	}
	telemetry.Error("submission.state", fields)
	metrics.IncSubmissionFailed(string(state))
	r.observeDuration()
	if r.progress != nil {
		r.progress(StateFailed, "Error: "+failure.Reason)
	}

	if state == StateRequestingFeedback && r.pendingStored {
		r.markFailed(ctx, failure)
	}
	return failure
}

// markFailed flags the pending record so readers can tell an abandoned analysis from one
// still running. Feedback stays nil.
func (r *run) markFailed(ctx context.Context, failure *Failure) {
	r.rec.Status = submissions.StatusFailed
	r.rec.FailureReason = failure.Reason
	err := r.o.deps.StoreGuard.Do(detach(ctx), "mark_failed", func(ctx context.Context) error {
		return r.o.deps.Records.Put(ctx, r.owner, &r.rec)
	})
	if err != nil {
		telemetry.Warn("submission.mark_failed_error", map[string]any{
			"submission_id": r.rec.ID,
			"request_id":    RequestIDFromContext(ctx),
			"error":         util.SanitizeError(err),
		})
	}
}

func (r *run) observeDuration() {
	elapsed := r.o.deps.Now().Sub(r.startedAt)
	metrics.ObserveSubmissionDurationMs(float64(elapsed.Milliseconds()))
}

func (r *run) writeArtifact(ctx context.Context, op, name string, data []byte) (object.Artifact, error) {
	var art object.Artifact
	err := r.o.deps.StoreGuard.Do(ctx, op, func(ctx context.Context) error {
		var err error
		art, err = r.o.deps.Artifacts.Write(ctx, r.owner, name, bytes.NewReader(data))
		return err
	})
	return art, err
}

func (r *run) uploadDocument(ctx context.Context, fileName string, doc []byte) error {
	r.enter(ctx, StateUploadingDocument)
	art, err := r.writeArtifact(ctx, "write_document", fileName, doc)
	if err != nil {
		return r.fail(ctx, StateUploadingDocument, ReasonUploadDocument, CodeStorage, err)
	}
	r.rec.ResumePath = art.Path
	return nil
}

// analyze runs every step after the document upload.
func (r *run) analyze(ctx context.Context, fileName string, doc []byte) (submissions.Record, error) {
	deps := r.o.deps

	r.enter(ctx, StateConvertingPreview)
	raster, err := deps.Rasterizer.Rasterize(ctx, doc)
	if err != nil {
		return r.rec, r.fail(ctx, StateConvertingPreview, err.Error(), CodeConversion, err)
	}

	r.enter(ctx, StateUploadingPreview)
	preview, err := r.writeArtifact(ctx, "write_preview", util.ReplaceExt(fileName, ".png"), raster.Image)
	if err != nil {
		return r.rec, r.fail(ctx, StateUploadingPreview, ReasonUploadPreview, CodeStorage, err)
	}
	r.rec.ImagePath = preview.Path

	r.enter(ctx, StatePersistingPendingRecord)
	r.rec.Feedback = nil
	r.rec.Status = submissions.StatusPending
	if err := deps.StoreGuard.Do(ctx, "put_pending", func(ctx context.Context) error {
		return deps.Records.Put(ctx, r.owner, &r.rec)
	}); err != nil {
		return r.rec, r.fail(ctx, StatePersistingPendingRecord, fmt.Sprintf("failed to save submission: %v", err), CodeStorage, err)
	}
	r.pendingStored = true

	r.enter(ctx, StateRequestingFeedback)
	var text string
	req := inference.Request{
		DocumentPath: r.rec.ResumePath,
		Document:     doc,
		FileName:     fileName,
		Prompt:       feedback.Instructions(r.rec.JobTitle, r.rec.JobDescription),
	}
	if err := deps.InferenceGuard.Do(ctx, "infer", func(ctx context.Context) error {
		var err error
		text, err = deps.Inference.Infer(ctx, req)
		return err
	}); err != nil {
		return r.rec, r.fail(ctx, StateRequestingFeedback, ReasonInference, classifyInference(err), err)
	}

	r.enter(ctx, StatePersistingFeedback)
	result := feedback.Parse(text)
	if result.IsRaw() {
		metrics.IncRawFeedback()
		telemetry.Warn("submission.raw_feedback", map[string]any{
			"submission_id": r.rec.ID,
			"request_id":    RequestIDFromContext(ctx),
			"length":        len(text),
		})
	}
	final := r.rec
	final.Feedback = result
	final.Status = submissions.StatusCompleted
	if err := deps.StoreGuard.Do(ctx, "put_feedback", func(ctx context.Context) error {
		return deps.Records.Put(ctx, r.owner, &final)
	}); err != nil {
		return r.rec, r.fail(ctx, StatePersistingFeedback, fmt.Sprintf("failed to save analysis: %v", err), CodeStorage, err)
	}
	r.rec = final

	r.enter(ctx, StateComplete)
	metrics.IncSubmissionCompleted()
	r.observeDuration()
	return r.rec, nil
}
