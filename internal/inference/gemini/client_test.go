package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"resume-critique/internal/inference"
)

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: genai.RoleModel}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestInferSendsDocumentInline(t *testing.T) {
	fake := &fakeModels{resp: textResponse(`{"overallScore": 80}`)}
	client := newWithModels(fake, "")

	out, err := client.Infer(context.Background(), inference.Request{
		Document: []byte("%PDF-1.4"),
		Prompt:   "critique this",
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if out != `{"overallScore": 80}` {
		t.Fatalf("unexpected output %q", out)
	}
	if fake.model != defaultModel {
		t.Fatalf("expected default model, got %q", fake.model)
	}
	parts := fake.contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "critique this" || parts[1].InlineData == nil {
		t.Fatalf("unexpected parts: %+v", parts)
	}
	if parts[1].InlineData.MIMEType != "application/pdf" {
		t.Fatalf("unexpected mime type %q", parts[1].InlineData.MIMEType)
	}
}

func TestInferJoinsParts(t *testing.T) {
	client := newWithModels(&fakeModels{resp: textResponse("first", " ", "second")}, "gemini-x")
	out, err := client.Infer(context.Background(), inference.Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if out != "first\nsecond" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInferEmptyResponse(t *testing.T) {
	client := newWithModels(&fakeModels{resp: textResponse()}, "gemini-x")
	if _, err := client.Infer(context.Background(), inference.Request{Prompt: "p"}); !errors.Is(err, inference.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestInferWrapsProviderError(t *testing.T) {
	client := newWithModels(&fakeModels{err: errors.New("quota")}, "gemini-x")
	if _, err := client.Infer(context.Background(), inference.Request{Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}
}
