// Package storage materializes downloaded media as references the caller can
// dereference: short-lived local blobs, or published S3 objects.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// BlobScheme prefixes references to local blobs.
const BlobScheme = "blob:"

// Static errors for blob operations.
var (
	// ErrBlobNotFound is returned when a reference does not name a live local blob.
	ErrBlobNotFound = errors.New("storage: blob not found")
	// ErrNotLocalBlob is returned when opening a reference that is not a local blob.
	ErrNotLocalBlob = errors.New("storage: reference is not a local blob")
)

// BlobStore holds generated media for display.
type BlobStore interface {
	// Put stores data and returns a reference to it.
	// The name parameter is used as a hint for the object name.
	Put(ctx context.Context, name string, data io.Reader) (ref string, err error)

	// Open returns a reader for a local blob reference.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Release frees the given references. Unknown or remote references are ignored.
	// It continues even if some releases fail.
	Release(ctx context.Context, refs []string) error
}

// IsLocalRef reports whether ref names a local blob.
func IsLocalRef(ref string) bool {
	return strings.HasPrefix(ref, BlobScheme)
}

// BlobID returns the identifier part of a local blob reference.
func BlobID(ref string) string {
	return strings.TrimPrefix(ref, BlobScheme)
}
