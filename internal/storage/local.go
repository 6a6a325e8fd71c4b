package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// LocalStorage implements BlobStore using temporary files on local disk.
// Blobs live until released; nothing is kept across restarts.
type LocalStorage struct {
	tempDir string

	mu    sync.RWMutex
	blobs map[string]string // blob ID -> file path
}

// Compile-time check that LocalStorage implements BlobStore.
var _ BlobStore = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance.
// If tempDir is empty, a "genstudio" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "genstudio")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{
		tempDir: tempDir,
		blobs:   make(map[string]string),
	}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// Put writes data to a temporary file and returns a "blob:<id>" reference.
func (s *LocalStorage) Put(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.tempDir, name+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = fileName
	s.mu.Unlock()

	return BlobScheme + id, nil
}

// Open returns a reader for a local blob.
func (s *LocalStorage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !IsLocalRef(ref) {
		return nil, ErrNotLocalBlob
	}

	s.mu.RLock()
	path, ok := s.blobs[BlobID(ref)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}

	f, err := os.Open(path) // #nosec G304 - path was created by Put
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Release removes the files behind local blob references,
// returning the first error encountered.
func (s *LocalStorage) Release(ctx context.Context, refs []string) error {
	var firstErr error
	for _, ref := range refs {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if !IsLocalRef(ref) {
			continue
		}

		s.mu.Lock()
		path, ok := s.blobs[BlobID(ref)]
		delete(s.blobs, BlobID(ref))
		s.mu.Unlock()
		if !ok {
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove blob %s: %w", ref, err)
			}
		}
	}
	return firstErr
}

// Close releases every live blob.
func (s *LocalStorage) Close() error {
	s.mu.RLock()
	refs := make([]string, 0, len(s.blobs))
	for id := range s.blobs {
		refs = append(refs, BlobScheme+id)
	}
	s.mu.RUnlock()
	return s.Release(context.Background(), refs)
}
