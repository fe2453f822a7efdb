package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"resume-critique/internal/inference"
	"resume-critique/internal/rasterize"
	"resume-critique/internal/shared/storage/kv"
	"resume-critique/internal/shared/storage/object"
	"resume-critique/internal/submissions"
)

type memArtifacts struct {
	mu       sync.Mutex
	objects  map[string][]byte
	seq      int
	failName string
	failErr  error
	failures int
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{objects: map[string][]byte{}}
}

func (m *memArtifacts) Write(ctx context.Context, owner, fileName string, r io.Reader) (object.Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return object.Artifact{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failName != "" && m.failName == fileName && m.failures != 0 {
		if m.failures > 0 {
			m.failures--
		}
		return object.Artifact{}, m.failErr
	}
	m.seq++
	id := fmt.Sprintf("%04d", m.seq)
	path := owner + "/" + id + "_" + fileName
	m.objects[path] = data
	return object.Artifact{ID: id, Name: fileName, Path: path, SizeBytes: int64(len(data))}, nil
}

func (m *memArtifacts) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, object.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memArtifacts) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *memArtifacts) List(ctx context.Context, owner string) ([]object.Artifact, error) {
	return nil, nil
}

func (m *memArtifacts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeRasterizer struct {
	err error
}

func (f fakeRasterizer) Rasterize(ctx context.Context, doc []byte) (rasterize.Result, error) {
	if f.err != nil {
		return rasterize.Result{}, f.err
	}
	return rasterize.Result{Image: []byte("png-bytes"), Width: 10, Height: 10, ContentType: rasterize.ContentType}, nil
}

type fakeInference struct {
	mu      sync.Mutex
	text    string
	errs    []error
	delay   time.Duration
	calls   int
	lastReq inference.Request
}

func (f *fakeInference) Infer(ctx context.Context, req inference.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return f.text, nil
}

type failingRecords struct {
	err error
}

func (f failingRecords) Put(ctx context.Context, owner string, rec *submissions.Record) error {
	return f.err
}

var errBoom = errors.New("boom")

const validFeedback = `{
  "overallScore": 78,
  "ATS": {"score": 70, "tips": [{"type": "good", "tip": "Standard headings"}, {"type": "improve", "tip": "Add Go keywords"}]},
  "toneAndStyle": {"score": 80, "tips": []},
  "content": {"score": 75, "tips": []},
  "structure": {"score": 85, "tips": []},
  "skills": {"score": 72, "tips": []}
}`

type harness struct {
	orch      *Orchestrator
	artifacts *memArtifacts
	records   *submissions.Store
	infer     *fakeInference
}

func newHarness(mutate func(*Deps)) *harness {
	h := &harness{
		artifacts: newMemArtifacts(),
		records:   submissions.NewStore(kv.NewMemoryStore()),
		infer:     &fakeInference{text: validFeedback},
	}
	deps := Deps{
		Artifacts:  h.artifacts,
		Records:    h.records,
		Rasterizer: fakeRasterizer{},
		Inference:  h.infer,
	}
	if mutate != nil {
		mutate(&deps)
	}
	orch, err := New(deps)
	if err != nil {
		panic(err)
	}
	h.orch = orch
	return h
}

func testSubmission() Submission {
	return Submission{
		Owner:          "guest:tester",
		FileName:       "resume.pdf",
		Document:       []byte("%PDF-1.4 one page"),
		CompanyName:    "Acme",
		JobTitle:       "Backend Engineer",
		JobDescription: "Go services on AWS",
	}
}
