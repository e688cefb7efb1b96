package archive_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/mdouchement/modelshuttle/internal/archive"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storage"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/storetest"
	"github.com/mdouchement/modelshuttle/internal/xpath"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root     string
	blobs    storage.BlobStore
	id       model.Identity
	manifest *model.Manifest
	contents map[digest.Digest]string
}

func newFixture(t *testing.T) *fixture {
	root := storetest.Root(t)
	id := model.NewIdentity("mistral", "7b")
	m := storetest.AddModel(t, root, id, `{"model_format":"gguf"}`, "weights-aa", "template-bb", "weights-aa")

	contents := map[digest.Digest]string{}
	for _, c := range []string{`{"model_format":"gguf"}`, "weights-aa", "template-bb"} {
		contents[digest.FromString(c)] = c
	}

	return &fixture{
		root:     root,
		blobs:    storage.NewFileSystem(root),
		id:       id,
		manifest: m,
		contents: contents,
	}
}

func (f *fixture) pack(t *testing.T, name string) string {
	dest := filepath.Join(t.TempDir(), name)
	require.NoError(t, archive.Pack(context.Background(), f.manifest, f.id, f.blobs, dest, archive.Options{}))
	return dest
}

func readAll(t *testing.T, blob archive.StagedBlob) string {
	rc, err := blob.Open()
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"m.tar.gz", "m.tar.zst", "m.tar"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			dest := f.pack(t, name)

			var events []model.Progress
			bundle, err := archive.Unpack(context.Background(), dest, t.TempDir(), archive.Options{
				Progress: func(p model.Progress) { events = append(events, p) },
			})
			require.NoError(t, err)
			defer bundle.Close()

			assert.Equal(t, archive.CompressionFromPath(name), bundle.Compression)
			assert.Equal(t, f.manifest.Raw(), bundle.Manifest.Raw())
			assert.Equal(t, f.id, bundle.Identity)
			assert.False(t, bundle.Legacy)

			blobs := bundle.Blobs()
			require.Len(t, blobs, 3)
			for i, layer := range f.manifest.Blobs() {
				assert.Equal(t, layer.Digest, blobs[i].Digest)
				assert.Equal(t, layer.Size, blobs[i].Size)
				assert.Equal(t, f.contents[layer.Digest], readAll(t, blobs[i]))
			}
			assert.Equal(t, f.manifest.Size(), bundle.Size())

			require.NotEmpty(t, events)
			last := events[len(events)-1]
			assert.Equal(t, model.StageUnpack, last.Stage)
			assert.Equal(t, f.manifest.Size(), last.BytesDone)
		})
	}
}

func TestPackLayout(t *testing.T) {
	f := newFixture(t)
	dest := f.pack(t, "m.tar")

	file, err := os.Open(dest)
	require.NoError(t, err)
	defer file.Close()

	var names []string
	tr := tar.NewReader(file)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		assert.Equal(t, int64(0), hdr.ModTime.Unix())
		assert.Equal(t, int64(0o644), hdr.Mode)

		if hdr.Name == xpath.ArchiveManifest {
			assert.Equal(t, "mistral", hdr.PAXRecords["MODELSHUTTLE.name"])
			assert.Equal(t, "7b", hdr.PAXRecords["MODELSHUTTLE.tag"])
		}
	}

	expected := []string{xpath.ArchiveManifest}
	for _, layer := range f.manifest.Blobs() {
		expected = append(expected, xpath.ArchiveBlobName(layer.Digest))
	}
	assert.Equal(t, expected, names)
}

func TestPackIsReproducible(t *testing.T) {
	for _, name := range []string{"m.tar.gz", "m.tar.zst"} {
		f := newFixture(t)

		a, err := os.ReadFile(f.pack(t, name))
		require.NoError(t, err)
		b, err := os.ReadFile(f.pack(t, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}
}

func TestPackIncompleteSource(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(xpath.BlobPath(f.root, digest.FromString("template-bb"))))

	dest := filepath.Join(t.TempDir(), "m.tar.gz")
	err := archive.Pack(context.Background(), f.manifest, f.id, f.blobs, dest, archive.Options{})
	assert.True(t, storeerr.Is(err, storeerr.IncompleteSource), "%v", err)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial archive")
}

func TestPackCorruptSource(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(xpath.BlobPath(f.root, digest.FromString("template-bb")), []byte("template-xx"), 0o644))

	dest := filepath.Join(t.TempDir(), "m.tar.gz")
	err := archive.Pack(context.Background(), f.manifest, f.id, f.blobs, dest, archive.Options{})
	assert.True(t, storeerr.Is(err, storeerr.Corrupt), "%v", err)
	assert.NoFileExists(t, dest)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPackCanceled(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "m.tar.gz")
	err := archive.Pack(ctx, f.manifest, f.id, f.blobs, dest, archive.Options{})
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial archive")
}

func TestUnpackTamperedBlob(t *testing.T) {
	f := newFixture(t)
	dest := f.pack(t, "m.tar")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	i := bytes.Index(data, []byte("weights-aa"))
	require.True(t, i > 0)
	data[i] = 'W'
	require.NoError(t, os.WriteFile(dest, data, 0o644))

	staging := t.TempDir()
	_, err = archive.Unpack(context.Background(), dest, staging, archive.Options{})
	assert.True(t, storeerr.Is(err, storeerr.Integrity), "%v", err)

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging is removed on failure")
}

type entry struct {
	name    string
	content string
	records map[string]string
}

func writeTar(t *testing.T, entries ...entry) string {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Typeflag:   tar.TypeReg,
			Name:       e.name,
			Size:       int64(len(e.content)),
			Mode:       0o644,
			PAXRecords: e.records,
		}))
		_, err := tw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	p := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestUnpackCorruptStructure(t *testing.T) {
	config := storetest.Layer(storetest.MediaTypeConfig, "config")
	weights := storetest.Layer(storetest.MediaTypeModel, "weights")
	m, err := model.NewManifest(config, weights)
	require.NoError(t, err)

	manifest := entry{name: xpath.ArchiveManifest, content: string(m.Raw())}
	cfg := entry{name: xpath.ArchiveBlobName(config.Digest), content: "config"}
	w := entry{name: xpath.ArchiveBlobName(weights.Digest), content: "weights"}
	stray := entry{name: xpath.ArchiveBlobName(digest.FromString("stray")), content: "stray"}

	cases := map[string][]entry{
		"no manifest":         {cfg, w},
		"blob first":          {cfg, manifest, w},
		"missing blob":        {manifest, cfg},
		"duplicate blob":      {manifest, cfg, w, w},
		"duplicate manifest":  {manifest, manifest, cfg, w},
		"unreferenced blob":   {manifest, cfg, w, stray},
		"unknown entry":       {manifest, cfg, w, {name: "README", content: "hi"}},
		"unparsable manifest": {{name: xpath.ArchiveManifest, content: "{"}, cfg, w},
		"invalid identity": {
			{name: xpath.ArchiveManifest, content: string(m.Raw()), records: map[string]string{"MODELSHUTTLE.name": "../x"}},
			cfg, w,
		},
	}
	for name, entries := range cases {
		_, err := archive.Unpack(context.Background(), writeTar(t, entries...), t.TempDir(), archive.Options{})
		assert.True(t, storeerr.Is(err, storeerr.Corrupt), "%s: %v", name, err)
	}

	// Right digest, wrong size.
	_, err = archive.Unpack(context.Background(), writeTar(t, manifest, cfg, entry{name: w.name, content: "weights!"}), t.TempDir(), archive.Options{})
	assert.True(t, storeerr.Is(err, storeerr.Integrity), "%v", err)

	_, err = archive.Unpack(context.Background(), filepath.Join(t.TempDir(), "missing.tar.gz"), t.TempDir(), archive.Options{})
	assert.True(t, storeerr.Is(err, storeerr.NotFound), "%v", err)
}

func TestUnpackLegacyArchive(t *testing.T) {
	config := storetest.Layer(storetest.MediaTypeConfig, "config")
	weights := storetest.Layer(storetest.MediaTypeModel, "weights")
	m, err := model.NewManifest(config, weights)
	require.NoError(t, err)

	meta, err := json.Marshal(map[string]string{
		"model_name":     "llama",
		"parameter_size": "13b",
		"original_path":  "/home/user/.ollama/models/manifests/registry.ollama.ai/library/llama",
	})
	require.NoError(t, err)

	p := writeTar(t,
		entry{name: xpath.LegacyArchiveMetadata, content: string(meta)},
		entry{name: xpath.LegacyArchiveManifest, content: string(m.Raw())},
		entry{name: xpath.BlobFilename(config.Digest), content: "config"},
		entry{name: xpath.BlobFilename(weights.Digest), content: "weights"},
	)

	bundle, err := archive.Unpack(context.Background(), p, t.TempDir(), archive.Options{})
	require.NoError(t, err)
	defer bundle.Close()

	assert.True(t, bundle.Legacy)
	assert.Equal(t, model.NewIdentity("llama", "13b"), bundle.Identity)
	require.Len(t, bundle.Blobs(), 2)
	assert.Equal(t, "weights", readAll(t, bundle.Blobs()[1]))
}

func TestUnpackWithoutIdentity(t *testing.T) {
	weights := storetest.Layer(storetest.MediaTypeModel, "weights")
	m, err := model.NewManifest(model.Layer{}, weights)
	require.NoError(t, err)

	p := writeTar(t,
		entry{name: xpath.ArchiveManifest, content: string(m.Raw())},
		entry{name: xpath.ArchiveBlobName(weights.Digest), content: "weights"},
	)

	bundle, err := archive.Unpack(context.Background(), p, t.TempDir(), archive.Options{})
	require.NoError(t, err)
	defer bundle.Close()
	assert.True(t, bundle.Identity.IsZero())
}

func TestUnpackCanceled(t *testing.T) {
	f := newFixture(t)
	dest := f.pack(t, "m.tar.gz")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := archive.Unpack(ctx, dest, t.TempDir(), archive.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompressionFromPath(t *testing.T) {
	assert.Equal(t, archive.Gzip, archive.CompressionFromPath("/tmp/m.tar.gz"))
	assert.Equal(t, archive.Gzip, archive.CompressionFromPath("/tmp/m.tgz"))
	assert.Equal(t, archive.Gzip, archive.CompressionFromPath("/tmp/m"))
	assert.Equal(t, archive.Zstd, archive.CompressionFromPath("/tmp/M.TAR.ZST"))
	assert.Equal(t, archive.None, archive.CompressionFromPath("/tmp/m.tar"))
}
