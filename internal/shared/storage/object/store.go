package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("object not found")

// Artifact describes one stored binary object. Path is opaque to callers and is the only
// handle accepted by Read and Delete.
type Artifact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Store defines the contract for saving, reading and enumerating binary objects per owner.
type Store interface {
	Write(ctx context.Context, owner string, fileName string, r io.Reader) (Artifact, error)
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, owner string) ([]Artifact, error)
}

// NewID returns a time-sortable artifact identifier.
func NewID() string {
	return ulid.Make().String()
}

// ObjectName joins an artifact id and a sanitized file name.
func ObjectName(id, fileName string) string {
	return fmt.Sprintf("%s_%s", id, fileName)
}

// SplitName reverses ObjectName. Names without an id prefix are returned whole.
func SplitName(name string) (id string, fileName string) {
	prefix, rest, ok := strings.Cut(name, "_")
	if !ok {
		return "", name
	}
	if _, err := ulid.ParseStrict(prefix); err != nil {
		return "", name
	}
	return prefix, rest
}
