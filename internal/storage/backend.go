package storage

import (
	"context"
	"io"
	"time"

	"github.com/opencontainers/go-digest"
)

// BlobStore is the interface that wraps the content-addressed blob operations.
// It performs no reference counting: callers decide when a blob may go.
type BlobStore interface {
	// Name returns the name of the backend implementation.
	Name() string

	// Exists reports whether a blob is stored under d.
	Exists(d digest.Digest) bool
	// Size returns the stored size of the blob.
	Size(d digest.Digest) (int64, error)
	// Open returns a reader of the blob. The content is verified lazily,
	// the reader fails when reaching EOF on a corrupted blob.
	Open(d digest.Digest) (io.ReadCloser, error)
	// Verify eagerly recomputes the digest of the stored blob.
	Verify(d digest.Digest) error
	// Write stores r under d. The content is written aside, verified and then
	// atomically published so a blob is never visible half-written.
	Write(ctx context.Context, d digest.Digest, r io.Reader) (int64, error)
	// Delete removes the blob. A missing blob is not an error.
	Delete(d digest.Digest) error
	// List returns the digests of all the stored blobs.
	List() ([]digest.Digest, error)

	// TempDir returns a scratch directory on the same filesystem as the blobs.
	TempDir() string
	// Cleanup removes scratch files older than maxAge.
	Cleanup(maxAge time.Duration) (int, error)
}
