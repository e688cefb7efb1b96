package manifest_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mdouchement/modelshuttle/internal/manifest"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/storetest"
	"github.com/mdouchement/modelshuttle/internal/xpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)

	id := model.NewIdentity("mistral", "7b")
	expected := storetest.AddModel(t, root, id, "config", "weights", "template")

	m, err := store.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, expected.Raw(), m.Raw())
	require.Len(t, m.Layers, 2)
	assert.Equal(t, storetest.Layer(storetest.MediaTypeModel, "weights").Digest, m.Layers[0].Digest)
	assert.Equal(t, storetest.Layer(storetest.MediaTypeModel, "template").Digest, m.Layers[1].Digest)
}

func TestResolveNotFound(t *testing.T) {
	store := manifest.NewStore(storetest.Root(t))

	_, err := store.Resolve(model.NewIdentity("mistral", "7b"))
	assert.True(t, storeerr.Is(err, storeerr.NotFound), "%v", err)
}

func TestResolveCorrupt(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)
	id := model.NewIdentity("mistral", "7b")

	p := xpath.ManifestPath(root, id)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))

	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))
	_, err := store.Resolve(id)
	assert.True(t, storeerr.Is(err, storeerr.Corrupt), "%v", err)

	require.NoError(t, os.WriteFile(p, []byte(`{"schemaVersion":2,"layers":[{"digest":"sha256:xyz","size":1}]}`), 0o644))
	_, err = store.Resolve(id)
	assert.True(t, storeerr.Is(err, storeerr.Corrupt), "%v", err)
}

func TestResolveLegacyDirectory(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)
	id := model.NewIdentity("llama", "13b")

	m, err := model.NewManifest(storetest.AddBlob(t, root, storetest.MediaTypeConfig, "config"))
	require.NoError(t, err)

	dir := xpath.ManifestPath(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), m.Raw(), 0o644))

	resolved, err := store.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, m.Raw(), resolved.Raw())

	var ids []model.Identity
	for id, err := range store.List() {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []model.Identity{id}, ids)
}

func TestList(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)

	expected := []model.Identity{
		model.NewIdentity("mistral", "7b"),
		model.NewIdentity("mistral", "latest"),
		model.NewIdentity("llama", "13b"),
		{Registry: "hub.example.com", Namespace: "team", Name: "coder", Tag: "q4"},
	}
	for _, id := range expected {
		storetest.AddModel(t, root, id, "config-"+id.FullName(), "weights")
	}
	// Not a manifest: too shallow, hidden.
	require.NoError(t, os.WriteFile(filepath.Join(root, xpath.ManifestsDir, "stray"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(xpath.ManifestPath(root, expected[0])), ".hidden"), nil, 0o644))

	var ids []model.Identity
	for id, err := range store.List() {
		require.NoError(t, err)
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].FullName() < ids[j].FullName() })
	sort.Slice(expected, func(i, j int) bool { return expected[i].FullName() < expected[j].FullName() })
	assert.Equal(t, expected, ids)
}

func TestListEmptyStore(t *testing.T) {
	store := manifest.NewStore(filepath.Join(t.TempDir(), "missing"))

	for _, err := range store.List() {
		t.Fatalf("unexpected entry: %v", err)
	}
}

func TestListStopsEarly(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)
	storetest.AddModel(t, root, model.NewIdentity("a", "1"), "c1", "w")
	storetest.AddModel(t, root, model.NewIdentity("b", "1"), "c2", "w")

	var n int
	for range store.List() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestWriteAndRemove(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)
	id := model.NewIdentity("mistral", "7b")

	m, err := model.NewManifest(storetest.Layer(storetest.MediaTypeConfig, "config"))
	require.NoError(t, err)

	require.NoError(t, store.Write(id, m))
	assert.True(t, store.Exists(id))

	raw, err := os.ReadFile(xpath.ManifestPath(root, id))
	require.NoError(t, err)
	assert.Equal(t, m.Raw(), raw)

	require.NoError(t, store.Remove(id))
	assert.False(t, store.Exists(id))
	assert.NoDirExists(t, filepath.Join(root, xpath.ManifestsDir, id.Registry), "empty parents are pruned")
	assert.DirExists(t, filepath.Join(root, xpath.ManifestsDir))

	err = store.Remove(id)
	assert.True(t, storeerr.Is(err, storeerr.NotFound), "%v", err)
}

func TestPrune(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)

	storetest.AddModel(t, root, model.NewIdentity("mistral", "7b"), "config", "weights")
	empty := filepath.Join(root, xpath.ManifestsDir, model.DefaultRegistry, model.DefaultNamespace, "gone")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	n, err := store.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, empty)
	assert.True(t, store.Exists(model.NewIdentity("mistral", "7b")))
}

func TestWriteReplacesLegacyDirectory(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)
	id := model.NewIdentity("llama", "13b")

	old, err := model.NewManifest(storetest.Layer(storetest.MediaTypeConfig, "old"))
	require.NoError(t, err)
	dir := xpath.ManifestPath(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), old.Raw(), 0o644))

	m, err := model.NewManifest(storetest.Layer(storetest.MediaTypeConfig, "new"))
	require.NoError(t, err)
	require.NoError(t, store.Write(id, m))

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.False(t, fi.IsDir())

	resolved, err := store.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, m.Raw(), resolved.Raw())

	entries, err := os.ReadDir(filepath.Join(root, xpath.TempDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFailureKeepsLegacyDirectory(t *testing.T) {
	root := storetest.Root(t)
	store := manifest.NewStore(root)
	id := model.NewIdentity("llama", "13b")

	old, err := model.NewManifest(storetest.Layer(storetest.MediaTypeConfig, "old"))
	require.NoError(t, err)
	dir := xpath.ManifestPath(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), old.Raw(), 0o644))

	// The temporary area cannot be created.
	require.NoError(t, os.WriteFile(filepath.Join(root, xpath.TempDir), nil, 0o644))

	m, err := model.NewManifest(storetest.Layer(storetest.MediaTypeConfig, "new"))
	require.NoError(t, err)
	assert.Error(t, store.Write(id, m))

	resolved, err := store.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, old.Raw(), resolved.Raw())
}
