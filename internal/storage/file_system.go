package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mdouchement/modelshuttle/internal/checksum"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/xio"
	"github.com/mdouchement/modelshuttle/internal/xpath"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

type fs struct {
	workspace string
}

// NewFileSystem returns a new File System blob store rooted at the store's workspace.
func NewFileSystem(workspace string) BlobStore {
	return &fs{
		workspace: workspace,
	}
}

func (b *fs) Name() string {
	return "file_system"
}

func (b *fs) Exists(d digest.Digest) bool {
	_, err := os.Stat(xpath.BlobPath(b.workspace, d))
	return err == nil
}

func (b *fs) Size(d digest.Digest) (int64, error) {
	fi, err := os.Stat(xpath.BlobPath(b.workspace, d))
	if err != nil {
		return 0, storeerr.FromOS("blob size", string(d), err)
	}
	return fi.Size(), nil
}

func (b *fs) Open(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(xpath.BlobPath(b.workspace, d))
	if err != nil {
		return nil, storeerr.FromOS("open blob", string(d), err)
	}

	return &xio.ReadCloser{
		Reader: checksum.NewVerifyingReader(f, d, -1, storeerr.Corrupt),
		Closer: f,
	}, nil
}

func (b *fs) Verify(d digest.Digest) error {
	return checksum.Verify(xpath.BlobPath(b.workspace, d), d)
}

func (b *fs) Write(ctx context.Context, d digest.Digest, r io.Reader) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, storeerr.New(storeerr.Corrupt, "write blob", string(d), err)
	}

	if err := b.mkdirAll(xpath.TempDir); err != nil {
		return 0, err
	}
	if err := b.mkdirAll(xpath.BlobsDir); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(b.TempDir(), xpath.BlobFilename(d)+"-*.partial")
	if err != nil {
		return 0, storeerr.FromOS("write blob", string(d), err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	digester := d.Algorithm().Digester()
	n, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), xio.NewContextReader(ctx, r))
	if err != nil {
		cleanup()
		return n, storeerr.FromOS("write blob", string(d), err)
	}

	if actual := digester.Digest(); actual != d {
		cleanup()
		return n, storeerr.Errorf(storeerr.Integrity, "write blob", string(d), "content hashes to %s", actual)
	}

	if err = tmp.Sync(); err == nil {
		err = tmp.Close()
	}
	if err != nil {
		cleanup()
		return n, storeerr.FromOS("write blob", string(d), err)
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		cleanup()
		return n, storeerr.FromOS("write blob", string(d), err)
	}

	if err := os.Rename(tmp.Name(), xpath.BlobPath(b.workspace, d)); err != nil {
		cleanup()
		return n, storeerr.FromOS("publish blob", string(d), err)
	}
	return n, nil
}

func (b *fs) Delete(d digest.Digest) error {
	err := os.Remove(xpath.BlobPath(b.workspace, d))
	if err != nil && !os.IsNotExist(err) {
		return storeerr.FromOS("delete blob", string(d), err)
	}
	return nil
}

func (b *fs) List() ([]digest.Digest, error) {
	entries, err := os.ReadDir(filepath.Join(b.workspace, xpath.BlobsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.FromOS("list blobs", "", err)
	}

	var digests []digest.Digest
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Partial downloads of the runtime and foreign files do not parse.
		d, ok := xpath.ParseBlobFilename(entry.Name())
		if !ok {
			continue
		}
		digests = append(digests, d)
	}

	return digests, nil
}

func (b *fs) TempDir() string {
	return filepath.Join(b.workspace, xpath.TempDir)
}

func (b *fs) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(b.TempDir())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, storeerr.FromOS("cleanup", b.TempDir(), err)
	}

	deadline := time.Now().Add(-maxAge)
	var removed int
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // Removed concurrently.
		}
		if info.ModTime().After(deadline) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(b.TempDir(), entry.Name())); err != nil {
			return removed, errors.Wrap(err, "cleanup")
		}
		removed++
	}
	return removed, nil
}

func (b *fs) mkdirAll(dir string) error {
	err := os.MkdirAll(filepath.Join(b.workspace, dir), 0o755)
	return storeerr.FromOS("mkdir", dir, err)
}
