package transfer_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mdouchement/modelshuttle/internal/database"
	"github.com/mdouchement/modelshuttle/internal/manifest"
	"github.com/mdouchement/modelshuttle/internal/storage"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/storetest"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func newEngine(root string, blobs storage.BlobStore, db database.Client) *transfer.Engine {
	if blobs == nil {
		blobs = storage.NewFileSystem(root)
	}
	return transfer.New(transfer.Controller{
		Logger:    storetest.Logger(),
		Manifests: manifest.NewStore(root),
		Blobs:     blobs,
		Database:  db,
	})
}

func openJournal(t *testing.T) database.Client {
	p := filepath.Join(t.TempDir(), "journal.db")
	require.NoError(t, database.StormInit(p))
	db, err := database.StormOpen(p)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// snapshot lists every file of the store with its content digest.
func snapshot(t *testing.T, root string) []string {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files = append(files, rel+"@"+string(digest.FromBytes(data)))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

// failingStore fails the nth write.
type failingStore struct {
	storage.BlobStore
	n      int
	writes int
}

func (s *failingStore) Write(ctx context.Context, d digest.Digest, r io.Reader) (int64, error) {
	s.writes++
	if s.writes == s.n {
		return 0, storeerr.Errorf(storeerr.IO, "write blob", string(d), "no space left on device")
	}
	return s.BlobStore.Write(ctx, d, r)
}
