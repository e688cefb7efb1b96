// Package storetest builds throwaway model stores for tests.
package storetest

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/xpath"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Media types used by the model runtime.
const (
	MediaTypeModel    = "application/vnd.ollama.image.model"
	MediaTypeTemplate = "application/vnd.ollama.image.template"
	MediaTypeParams   = "application/vnd.ollama.image.params"
	MediaTypeConfig   = "application/vnd.docker.container.image.v1+json"
)

// Logger returns a silent logger.
func Logger() logger.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logger.WrapLogrus(log)
}

// Root returns a fresh store root.
func Root(t testing.TB) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "models")
	require.NoError(t, os.MkdirAll(filepath.Join(root, xpath.BlobsDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, xpath.ManifestsDir), 0o755))
	return root
}

// Layer returns the descriptor of content without storing it.
func Layer(mediaType, content string) model.Layer {
	return model.Layer{
		MediaType: mediaType,
		Digest:    digest.FromString(content),
		Size:      int64(len(content)),
	}
}

// AddBlob stores content as a blob in root and returns its descriptor.
func AddBlob(t testing.TB, root, mediaType, content string) model.Layer {
	t.Helper()

	layer := Layer(mediaType, content)
	require.NoError(t, os.WriteFile(xpath.BlobPath(root, layer.Digest), []byte(content), 0o644))
	return layer
}

// AddManifest writes a manifest for id referencing config and layers.
func AddManifest(t testing.TB, root string, id model.Identity, config model.Layer, layers ...model.Layer) *model.Manifest {
	t.Helper()

	m, err := model.NewManifest(config, layers...)
	require.NoError(t, err)

	p := xpath.ManifestPath(root, id)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, m.Raw(), 0o644))
	return m
}

// AddModel stores blobs for each content (the first one is the config) and writes the manifest.
func AddModel(t testing.TB, root string, id model.Identity, config string, layers ...string) *model.Manifest {
	t.Helper()

	cfg := AddBlob(t, root, MediaTypeConfig, config)
	descriptors := make([]model.Layer, 0, len(layers))
	for _, content := range layers {
		descriptors = append(descriptors, AddBlob(t, root, MediaTypeModel, content))
	}
	return AddManifest(t, root, id, cfg, descriptors...)
}

// ReadBlob returns the content of a stored blob.
func ReadBlob(t testing.TB, root string, d digest.Digest) string {
	t.Helper()

	data, err := os.ReadFile(xpath.BlobPath(root, d))
	require.NoError(t, err)
	return string(data)
}

// BlobExists reports whether root holds d.
func BlobExists(root string, d digest.Digest) bool {
	_, err := os.Stat(xpath.BlobPath(root, d))
	return err == nil
}
