package pipeline

import (
	"context"
	"errors"
	"strings"
)

// Failure codes attached to a failed submission.
const (
	CodeStorage          = "STORAGE_ERROR"
	CodeConversion       = "CONVERSION_ERROR"
	CodeInferenceTimeout = "INFERENCE_TIMEOUT"
	CodeInference        = "INFERENCE_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// User-facing failure reasons.
const (
	ReasonUploadDocument = "failed to upload resume"
	ReasonUploadPreview  = "failed to upload image"
	ReasonInference      = "AI analysis failed"
	ReasonLoadDocument   = "failed to load resume"
)

// Failure is the terminal error of a submission. Error returns the user-facing reason; the
// underlying cause stays available through Unwrap.
type Failure struct {
	State  State
	Reason string
	Code   string
	Err    error
}

func (f *Failure) Error() string {
	return f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func classifyInference(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeInferenceTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return CodeInferenceTimeout
	}
	return CodeInference
}
