// Package wipe removes every artifact and record belonging to one identity.
package wipe

import (
	"context"
	"errors"
	"fmt"

	"resume-critique/internal/pipeline"
	"resume-critique/internal/shared/storage/object"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
)

// RecordFlusher clears an owner's record namespace.
type RecordFlusher interface {
	Flush(ctx context.Context, owner string) error
}

// Report summarizes one wipe.
type Report struct {
	ArtifactsListed  int      `json:"artifactsListed"`
	ArtifactsDeleted int      `json:"artifactsDeleted"`
	AlreadyGone      int      `json:"alreadyGone"`
	Failed           []string `json:"failed,omitempty"`
	RecordsFlushed   bool     `json:"recordsFlushed"`
}

// Service runs bulk wipes. It is not transactional; a failed wipe can be re-run.
type Service struct {
	Artifacts object.Store
	Records   RecordFlusher
	Guard     pipeline.Guard
}

// Wipe deletes every artifact of owner, then flushes owner's records. Artifacts that are
// already gone are counted, not treated as errors. When any delete fails the records are
// kept and the error lists the failed paths.
func (s *Service) Wipe(ctx context.Context, owner string) (Report, error) {
	var report Report

	var artifacts []object.Artifact
	err := s.Guard.Do(ctx, "list_artifacts", func(ctx context.Context) error {
		var err error
		artifacts, err = s.Artifacts.List(ctx, owner)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("list artifacts: %w", err)
	}
	report.ArtifactsListed = len(artifacts)

	var errs []error
	for _, art := range artifacts {
		err := s.Guard.Do(ctx, "delete_artifact", func(ctx context.Context) error {
			return s.Artifacts.Delete(ctx, art.Path)
		})
		switch {
		case err == nil:
			report.ArtifactsDeleted++
		case errors.Is(err, object.ErrNotFound):
			report.AlreadyGone++
		default:
			report.Failed = append(report.Failed, art.Path)
			errs = append(errs, fmt.Errorf("delete %s: %w", art.Path, err))
		}
	}

	fields := map[string]any{
		"owner_hash":  util.ShortHash(owner),
		"listed":      report.ArtifactsListed,
		"deleted":     report.ArtifactsDeleted,
		"alreadyGone": report.AlreadyGone,
		"failed":      len(report.Failed),
	}
	if len(errs) > 0 {
		telemetry.Error("wipe.partial", fields)
		return report, errors.Join(errs...)
	}

	if err := s.Guard.Do(ctx, "flush_records", func(ctx context.Context) error {
		return s.Records.Flush(ctx, owner)
	}); err != nil {
		telemetry.Error("wipe.flush_failed", fields)
		return report, fmt.Errorf("flush records: %w", err)
	}
	report.RecordsFlushed = true
	telemetry.Info("wipe.complete", fields)
	return report, nil
}
