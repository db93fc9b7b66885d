package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ObjectStore holds uploaded video and cover files.
type ObjectStore interface {
	// Put stores r under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, r io.Reader, credential string) (string, error)

	// Delete removes the object at key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key, credential string) error
}

// ObjectKey builds a storage key "<owner>/<kind>/<uuid><ext>".
func ObjectKey(owner, kind, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(owner, kind, uuid.NewString()+strings.ToLower(ext))
}

// HTTPStore implements [ObjectStore] against the backend's /v1/storage/{bucket} endpoints.
type HTTPStore struct {
	client *Client
	bucket string
}

// NewHTTPStore creates an [HTTPStore] for bucket.
func NewHTTPStore(client *Client, bucket string) *HTTPStore {
	return &HTTPStore{client: client, bucket: bucket}
}

func (s *HTTPStore) objectPath(key string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	segments := strings.Split(cleanKey, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "/v1/storage/" + url.PathEscape(s.bucket) + "/" + strings.Join(segments, "/"), nil
}

func (s *HTTPStore) Put(ctx context.Context, key, contentType string, r io.Reader, credential string) (string, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return "", err
	}
	var resp struct {
		PublicURL string `json:"public_url"`
	}
	if err := s.client.doUpload(ctx, "PUT", p, credential, contentType, r, &resp); err != nil {
		return "", err
	}
	if resp.PublicURL == "" {
		return s.client.BaseURL() + p, nil
	}
	return resp.PublicURL, nil
}

func (s *HTTPStore) Delete(ctx context.Context, key, credential string) error {
	p, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := s.client.doJSON(ctx, "DELETE", p, credential, nil, nil); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// FileStore persists objects onto the local filesystem, for development without an object storage service.
type FileStore struct {
	basePath   string
	publicBase string
}

// NewFileStore initializes a FileStore rooted at basePath.
//
// Public URLs are publicBase joined with the key, or file:// URLs when publicBase is empty.
func NewFileStore(basePath, publicBase string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	return &FileStore{basePath: abs, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string { return s.basePath }

func (s *FileStore) Put(ctx context.Context, key, _ string, r io.Reader, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("storage: close file: %w", err)
	}

	if s.publicBase != "" {
		return s.publicBase + "/" + cleanKey, nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(fullPath)}).String(), nil
}

func (s *FileStore) Delete(ctx context.Context, key, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleanKey))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
