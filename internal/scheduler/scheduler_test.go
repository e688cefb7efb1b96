package scheduler_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/modelshuttle/internal/manifest"
	"github.com/mdouchement/modelshuttle/internal/scheduler"
	"github.com/mdouchement/modelshuttle/internal/storage"
	"github.com/mdouchement/modelshuttle/internal/storetest"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/mdouchement/modelshuttle/internal/xpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper(t *testing.T) {
	root := storetest.Root(t)
	engine := transfer.New(transfer.Controller{
		Logger:    storetest.Logger(),
		Manifests: manifest.NewStore(root),
		Blobs:     storage.NewFileSystem(root),
	})

	require.NoError(t, os.MkdirAll(filepath.Join(root, xpath.TempDir), 0o755))
	stale := filepath.Join(root, xpath.TempDir, "stale.partial")
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	c, err := scheduler.Start(scheduler.Controller{
		Logger:        storetest.Logger(),
		Engine:        engine,
		Specification: "@every 1s",
		MaxAge:        time.Hour,
	})
	require.NoError(t, err)
	defer c.Stop()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestInvalidSpecification(t *testing.T) {
	_, err := scheduler.Start(scheduler.Controller{
		Logger:        storetest.Logger(),
		Specification: "every now and then",
	})
	assert.Error(t, err)
}
