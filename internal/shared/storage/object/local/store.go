package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"resume-critique/internal/shared/storage/object"
	"resume-critique/internal/shared/util"
)

// Store implements object.Store using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Write stores the reader under the owner's namespace with an id prefix.
func (s *Store) Write(ctx context.Context, owner string, fileName string, r io.Reader) (object.Artifact, error) {
	sanitizedName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return object.Artifact{}, fmt.Errorf("sanitize file name: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return object.Artifact{}, err
	}

	storageUserKey := util.HashUserKey(owner)
	id := object.NewID()
	finalName := object.ObjectName(id, sanitizedName)

	dirPath := filepath.Join(s.baseDir, storageUserKey)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return object.Artifact{}, fmt.Errorf("mkdir: %w", err)
	}

	fullPath := filepath.Join(dirPath, finalName)
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return object.Artifact{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return object.Artifact{}, fmt.Errorf("read sniff: %w", readErr)
	}
	mimeType := http.DetectContentType(sniff[:n])

	size := int64(0)
	if n > 0 {
		if _, err := f.Write(sniff[:n]); err != nil {
			return object.Artifact{}, fmt.Errorf("write sniff: %w", err)
		}
		size += int64(n)
	}
	written, err := io.Copy(f, r)
	if err != nil {
		return object.Artifact{}, fmt.Errorf("write body: %w", err)
	}
	size += written

	return object.Artifact{
		ID:          id,
		Name:        sanitizedName,
		Path:        filepath.ToSlash(filepath.Join(storageUserKey, finalName)),
		SizeBytes:   size,
		ContentType: mimeType,
	}, nil
}

// Read opens a stored object for reading.
func (s *Store) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, object.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a stored object. Missing objects report object.ErrNotFound.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", path, object.ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// List enumerates the owner's objects ordered by name, which is creation order.
func (s *Store) List(ctx context.Context, owner string) ([]object.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	storageUserKey := util.HashUserKey(owner)
	entries, err := os.ReadDir(filepath.Join(s.baseDir, storageUserKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list: %w", err)
	}

	out := make([]object.Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, name := object.SplitName(entry.Name())
		art := object.Artifact{
			ID:   id,
			Name: name,
			Path: storageUserKey + "/" + entry.Name(),
		}
		if info, err := entry.Info(); err == nil {
			art.SizeBytes = info.Size()
		}
		out = append(out, art)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key")
	}
	return filepath.Join(s.baseDir, clean), nil
}

var _ object.Store = (*Store)(nil)
