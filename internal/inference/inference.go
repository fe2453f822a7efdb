// Package inference defines the contract for providers that turn a resume and a prompt into
// free-form critique text.
package inference

import (
	"context"
	"errors"
)

// Request is a single inference call. DocumentPath is the artifact store reference; Document
// carries the bytes for providers that cannot dereference the store themselves.
type Request struct {
	DocumentPath string
	Document     []byte
	FileName     string
	Prompt       string
}

// Client produces free-form text for a request. Providers are not required to honor the JSON
// shape the prompt asks for.
type Client interface {
	Infer(ctx context.Context, req Request) (string, error)
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("inference provider not configured")

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("inference provider returned empty response")

// PlaceholderClient is used when no provider is configured.
type PlaceholderClient struct{}

// Infer returns ErrNotImplemented.
func (PlaceholderClient) Infer(ctx context.Context, req Request) (string, error) {
	_ = ctx
	_ = req
	return "", ErrNotImplemented
}

// StaticClient answers every request with Text. It backs local demos and the CLI dry-run.
type StaticClient struct {
	Text string
}

// Infer returns the configured text.
func (c StaticClient) Infer(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.Text, nil
}
