package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"resume-critique/internal/inference"
	"resume-critique/internal/pipeline"
	"resume-critique/internal/queue"
	"resume-critique/internal/rasterize"
	"resume-critique/internal/shared/server/middleware"
	"resume-critique/internal/shared/storage/kv"
	localstore "resume-critique/internal/shared/storage/object/local"
	"resume-critique/internal/submissions"
	"resume-critique/internal/wipe"
)

const validFeedback = `{"overallScore": 81, "ATS": {"score": 74, "tips": [{"type": "good", "tip": "Clear headings"}]},
 "toneAndStyle": {"score": 80, "tips": []}, "content": {"score": 70, "tips": []},
 "structure": {"score": 90, "tips": []}, "skills": {"score": 60, "tips": []}}`

type fakeRasterizer struct {
	err error
}

func (f fakeRasterizer) Rasterize(ctx context.Context, doc []byte) (rasterize.Result, error) {
	if f.err != nil {
		return rasterize.Result{}, f.err
	}
	return rasterize.Result{Image: []byte("png-bytes"), Width: 2, Height: 2, ContentType: rasterize.ContentType}, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (f *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type slowInference struct {
	delay time.Duration
	text  string
}

func (s slowInference) Infer(ctx context.Context, req inference.Request) (string, error) {
	select {
	case <-time.After(s.delay):
		return s.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type testEnv struct {
	router *gin.Engine
	svc    *Service
	orch   *pipeline.Orchestrator
}

func newTestEnv(t *testing.T, raster fakeRasterizer, text string, q queue.Client) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	artifacts := localstore.New(t.TempDir())
	records := submissions.NewStore(kv.NewMemoryStore())
	orch, err := pipeline.New(pipeline.Deps{
		Artifacts:  artifacts,
		Records:    records,
		Rasterizer: raster,
		Inference:  inference.StaticClient{Text: text},
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	svc := &Service{
		Pipeline:  orch,
		Records:   records,
		Artifacts: artifacts,
		Queue:     q,
		Wiper:     &wipe.Service{Artifacts: artifacts, Records: records},
		Now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Auth(nil))
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return &testEnv{router: router, svc: svc, orch: orch}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("X-Guest-Id", "tester")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func submitRequest(t *testing.T, mode string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", "resume.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte("%PDF-1.4 fake")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_ = writer.WriteField("companyName", "Acme")
	_ = writer.WriteField("jobTitle", "Backend Engineer")
	_ = writer.WriteField("jobDescription", "Go services")
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	url := "/api/v1/submissions"
	if mode != "" {
		url += "?mode=" + mode
	}
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", resp.Body.String(), err)
	}
}

func TestSyncSubmissionStoresFeedback(t *testing.T) {
	env := newTestEnv(t, fakeRasterizer{}, validFeedback, nil)

	resp := env.do(t, submitRequest(t, ""))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created submissionResponse
	decode(t, resp, &created)
	if created.Record == nil || created.Record.Feedback == nil || created.Record.Feedback.IsRaw() {
		t.Fatalf("expected structured feedback, got %+v", created.Record)
	}
	fb := created.Record.Feedback.Structured
	if fb.OverallScore != 81 || len(fb.ATS.Tips) == 0 {
		t.Fatalf("unexpected feedback %+v", fb)
	}
	if len(created.Progress) == 0 || created.Progress[len(created.Progress)-1].State != pipeline.StateComplete {
		t.Fatalf("expected progress ending in complete, got %+v", created.Progress)
	}

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/"+created.ID, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var rec submissions.Record
	decode(t, resp, &rec)
	if rec.JobTitle != "Backend Engineer" || rec.Status != submissions.StatusCompleted {
		t.Fatalf("unexpected record %+v", rec)
	}

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/"+created.ID+"/preview", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "png-bytes" {
		t.Fatalf("expected preview bytes, got %d %q", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/"+created.ID+"/document", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "%PDF-1.4 fake" {
		t.Fatalf("expected document bytes, got %d", resp.Code)
	}
}

func TestSyncSubmissionKeepsRawFeedback(t *testing.T) {
	env := newTestEnv(t, fakeRasterizer{}, "not json", nil)

	resp := env.do(t, submitRequest(t, "sync"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var raw map[string]any
	decode(t, resp, &raw)
	sub, _ := raw["submission"].(map[string]any)
	if sub["feedback"] != "not json" {
		t.Fatalf("expected raw feedback string, got %#v", sub["feedback"])
	}
}

func TestConversionFailureReturnsCode(t *testing.T) {
	convErr := &rasterize.ConversionError{Cause: errors.New("bad xref")}
	env := newTestEnv(t, fakeRasterizer{err: convErr}, validFeedback, nil)

	resp := env.do(t, submitRequest(t, ""))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decode(t, resp, &body)
	if body.Error.Code != pipeline.CodeConversion || body.Error.Message != "conversion failed: bad xref" {
		t.Fatalf("unexpected error body %+v", body.Error)
	}

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/submissions", nil))
	var listed struct {
		Submissions []submissions.Record `json:"submissions"`
	}
	decode(t, resp, &listed)
	if len(listed.Submissions) != 0 {
		t.Fatalf("expected no records after conversion failure, got %d", len(listed.Submissions))
	}
}

func TestAsyncSubmissionCompletesInBackground(t *testing.T) {
	env := newTestEnv(t, fakeRasterizer{}, validFeedback, nil)

	resp := env.do(t, submitRequest(t, "async"))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	var accepted submissionResponse
	decode(t, resp, &accepted)
	if accepted.ID == "" {
		t.Fatalf("expected id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.svc.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/"+accepted.ID, nil))
	var rec submissions.Record
	decode(t, resp, &rec)
	if rec.Status != submissions.StatusCompleted || rec.Feedback == nil {
		t.Fatalf("expected completed record, got %+v", rec)
	}
}

func TestQueueSubmission(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, fakeRasterizer{}, validFeedback, nil)
		resp := env.do(t, submitRequest(t, "queue"))
		if resp.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.Code)
		}
	})

	t.Run("enqueues staged document", func(t *testing.T) {
		q := &fakeQueue{}
		env := newTestEnv(t, fakeRasterizer{}, validFeedback, q)
		req := submitRequest(t, "queue")
		req.Header.Set("X-Request-Id", "req-q")
		resp := env.do(t, req)
		if resp.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
		}
		if len(q.msgs) != 1 {
			t.Fatalf("expected one message, got %d", len(q.msgs))
		}
		msg := q.msgs[0]
		if msg.Owner != "guest:tester" || msg.DocumentPath == "" || msg.RequestID != "req-q" || msg.Version != queue.MessageVersion {
			t.Fatalf("unexpected message %+v", msg)
		}

		rec, err := env.orch.Resume(context.Background(), pipeline.Job{
			ID: msg.SubmissionID, Owner: msg.Owner, DocumentPath: msg.DocumentPath,
			DocumentName: msg.DocumentName, JobTitle: msg.JobTitle,
		}, nil)
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
		if rec.ID != msg.SubmissionID || rec.Feedback == nil {
			t.Fatalf("unexpected resumed record %+v", rec)
		}
	})
}

func TestWipeTwiceIsNoop(t *testing.T) {
	env := newTestEnv(t, fakeRasterizer{}, validFeedback, nil)
	if resp := env.do(t, submitRequest(t, "")); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	for i := 0; i < 2; i++ {
		resp := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/submissions", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("wipe %d expected 200, got %d: %s", i+1, resp.Code, resp.Body.String())
		}
		var report wipe.Report
		decode(t, resp, &report)
		if i == 0 && report.ArtifactsDeleted != 2 {
			t.Fatalf("expected two artifacts deleted, got %+v", report)
		}
		if i == 1 && report.ArtifactsListed != 0 {
			t.Fatalf("expected nothing left, got %+v", report)
		}
	}

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/submissions", nil))
	var listed struct {
		Submissions []submissions.Record `json:"submissions"`
	}
	decode(t, resp, &listed)
	if len(listed.Submissions) != 0 {
		t.Fatalf("expected empty list after wipe")
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, fakeRasterizer{}, validFeedback, nil)

	resp := env.do(t, submitRequest(t, "later"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad mode, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", bytes.NewBufferString("x"))
	resp = env.do(t, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", resp.Code)
	}

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	anon := httptest.NewRequest(http.MethodGet, "/api/v1/submissions", nil)
	anonResp := httptest.NewRecorder()
	env.router.ServeHTTP(anonResp, anon)
	if anonResp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", anonResp.Code)
	}
	_, _ = io.Copy(io.Discard, anonResp.Body)
}

func TestNoBackgroundRedirectsAsync(t *testing.T) {
	tests := []struct {
		name     string
		queue    *fakeQueue
		wantCode int
		wantMode Mode
	}{
		{name: "queue available", queue: &fakeQueue{}, wantCode: http.StatusAccepted, wantMode: ModeQueue},
		{name: "no queue runs inline", wantCode: http.StatusCreated, wantMode: ModeSync},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var q queue.Client
			if tt.queue != nil {
				q = tt.queue
			}
			env := newTestEnv(t, fakeRasterizer{}, validFeedback, q)
			env.svc.NoBackground = true

			resp := env.do(t, submitRequest(t, "async"))
			if resp.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, resp.Code, resp.Body.String())
			}
			var body submissionResponse
			decode(t, resp, &body)
			if body.Mode != tt.wantMode {
				t.Fatalf("expected mode %q, got %q", tt.wantMode, body.Mode)
			}
			if tt.queue != nil && len(tt.queue.msgs) != 1 {
				t.Fatalf("expected one queued message, got %d", len(tt.queue.msgs))
			}
		})
	}
}

func TestSyncSubmitSurvivesCallerCancellation(t *testing.T) {
	artifacts := localstore.New(t.TempDir())
	records := submissions.NewStore(kv.NewMemoryStore())
	orch, err := pipeline.New(pipeline.Deps{
		Artifacts:  artifacts,
		Records:    records,
		Rasterizer: fakeRasterizer{},
		Inference:  slowInference{delay: 150 * time.Millisecond, text: validFeedback},
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	svc := &Service{Pipeline: orch, Records: records, Artifacts: artifacts}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	defer cancel()

	out, err := svc.Submit(ctx, pipeline.Submission{
		Owner:    "guest:tester",
		FileName: "resume.pdf",
		Document: []byte("%PDF-1.4 fake"),
		JobTitle: "Backend Engineer",
	}, ModeSync)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	stored, err := svc.Get(context.Background(), "guest:tester", out.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != submissions.StatusCompleted || stored.Feedback == nil {
		t.Fatalf("expected completed record, got status=%q feedback=%v", stored.Status, stored.Feedback)
	}
}
