package queue

import (
	"reflect"
	"strings"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		SubmissionID: "sub-123",
		Owner:        "google:42",
		DocumentPath: "abc/01J_resume.pdf",
		DocumentName: "resume.pdf",
		JobTitle:     "Backend Engineer",
		RequestID:    "request-456",
		EnqueuedAt:   "2026-01-30T22:00:00Z",
		Version:      MessageVersion,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	if !strings.Contains(string(payload), `"submissionId":"sub-123"`) {
		t.Fatalf("unexpected payload %s", payload)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}
