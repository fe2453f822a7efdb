// Package openai implements inference.Client on OpenAI Chat Completions, sending the resume as
// extracted text.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"resume-critique/internal/extract"
	"resume-critique/internal/inference"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
)

var apiURL = "https://api.openai.com/v1/chat/completions"

const maxResumeChars = 24000

// Client implements inference.Client using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client. Deadlines come from the caller's context.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Infer extracts the resume text and asks the model for a critique.
func (c *Client) Infer(ctx context.Context, req inference.Request) (string, error) {
	resumeText, err := extract.PDFText(ctx, req.Document)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	resumeText = util.Truncate(resumeText, maxResumeChars)

	messages := []chatMessage{
		{Role: "system", Content: req.Prompt},
		{Role: "user", Content: "Resume:\n" + resumeText},
	}
	body := chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if !isGPT5(c.model) {
		temp := float32(0)
		body.Temperature = &temp
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("openai request timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("openai http status %d: %s", resp.StatusCode, util.Truncate(string(raw), 200))
		}
		return "", fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai http status %d: %s (%s)", resp.StatusCode, parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", inference.ErrEmptyResponse
	}
	logUsage(c.model, parsed)
	return content, nil
}

func logUsage(model string, resp chatResponse) {
	fields := map[string]any{"provider": "openai", "model": model}
	if resp.Usage != nil {
		fields["promptTokens"] = resp.Usage.PromptTokens
		fields["completionTokens"] = resp.Usage.CompletionTokens
		fields["totalTokens"] = resp.Usage.TotalTokens
	}
	telemetry.Info("inference.response", fields)
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ inference.Client = (*Client)(nil)
