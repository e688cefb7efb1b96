package archive

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/mdouchement/modelshuttle/internal/checksum"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/xio"
	"github.com/mdouchement/modelshuttle/internal/xpath"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// A StagedBlob is a verified blob extracted from an archive.
type StagedBlob struct {
	Digest digest.Digest
	Size   int64
	path   string
}

// Open returns the staged content.
func (b StagedBlob) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, storeerr.FromOS("open staged blob", string(b.Digest), err)
	}
	return f, nil
}

// A Bundle is the verified content of an archive.
type Bundle struct {
	Manifest *model.Manifest
	// Identity is zero when the archive does not name the model.
	Identity    model.Identity
	Compression Compression
	// Legacy is set for archives written by the former export tool.
	Legacy bool

	blobs []StagedBlob
	dir   string
}

// Blobs returns the staged blobs in manifest order.
func (b *Bundle) Blobs() []StagedBlob {
	return b.blobs
}

// Size returns the sum of the staged blob sizes.
func (b *Bundle) Size() (size int64) {
	for _, blob := range b.blobs {
		size += blob.Size
	}
	return size
}

// Close removes the staged files.
func (b *Bundle) Close() error {
	return storeerr.FromOS("remove staging", b.dir, os.RemoveAll(b.dir))
}

// Unpack reads the archive at path and stages its blobs under stagingDir.
// Every blob is checked against the digest its entry name carries and the size its descriptor declares.
func Unpack(ctx context.Context, path, stagingDir string, opts Options) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, storeerr.FromOS("unpack", path, err)
	}
	defer f.Close()

	r, compression, err := decompress(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, storeerr.FromOS("unpack", stagingDir, err)
	}
	dir, err := os.MkdirTemp(stagingDir, "unpack-*")
	if err != nil {
		return nil, storeerr.FromOS("unpack", stagingDir, err)
	}

	u := &unpacker{
		ctx:  ctx,
		path: path,
		opts: opts,
		bundle: &Bundle{
			Compression: compression,
			dir:         dir,
		},
		staged: map[digest.Digest]StagedBlob{},
	}
	if err := u.run(tar.NewReader(r)); err != nil {
		u.bundle.Close()
		return nil, err
	}
	return u.bundle, nil
}

type unpacker struct {
	ctx    context.Context
	path   string
	opts   Options
	bundle *Bundle

	metadata *metadata
	staged   map[digest.Digest]StagedBlob
	done     int64
}

func (u *unpacker) run(tr *tar.Reader) error {
	for {
		if err := u.ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return u.corrupt("", err.Error())
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeXGlobalHeader:
			continue
		case tar.TypeReg:
		default:
			return u.corrupt(hdr.Name, "unsupported entry type")
		}

		name := xpath.CleanEntryName(hdr.Name)
		switch name {
		case xpath.ArchiveManifest, xpath.LegacyArchiveManifest:
			err = u.readManifest(tr, hdr, name == xpath.LegacyArchiveManifest)
		case xpath.LegacyArchiveMetadata:
			err = u.readMetadata(tr, hdr)
		default:
			d, ok := xpath.ParseArchiveBlobName(name)
			if !ok {
				return u.corrupt(name, "unexpected entry")
			}
			err = u.stage(tr, hdr, d)
		}
		if err != nil {
			return err
		}
	}

	return u.finish()
}

func (u *unpacker) readManifest(r io.Reader, hdr *tar.Header, legacy bool) error {
	if u.bundle.Manifest != nil {
		return u.corrupt(hdr.Name, "duplicate manifest")
	}
	if hdr.Size > maxManifestSize {
		return u.corrupt(hdr.Name, "manifest too large")
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxManifestSize))
	if err != nil {
		return u.corrupt(hdr.Name, err.Error())
	}
	m, err := model.ParseManifest(raw)
	if err != nil {
		return storeerr.New(storeerr.Corrupt, "unpack", u.path, err)
	}

	u.bundle.Manifest = m
	u.bundle.Legacy = legacy
	if id, ok := identityFromRecords(hdr.PAXRecords); ok {
		if err := id.Validate(); err != nil {
			return storeerr.New(storeerr.Corrupt, "unpack", u.path, err)
		}
		u.bundle.Identity = id
	}
	return nil
}

func (u *unpacker) readMetadata(r io.Reader, hdr *tar.Header) error {
	if u.metadata != nil {
		return u.corrupt(hdr.Name, "duplicate metadata")
	}
	if hdr.Size > maxManifestSize {
		return u.corrupt(hdr.Name, "metadata too large")
	}

	u.metadata = &metadata{}
	if err := json.NewDecoder(io.LimitReader(r, maxManifestSize)).Decode(u.metadata); err != nil {
		return u.corrupt(hdr.Name, "metadata: "+err.Error())
	}
	return nil
}

func (u *unpacker) stage(r io.Reader, hdr *tar.Header, d digest.Digest) error {
	m := u.bundle.Manifest
	switch {
	case m == nil:
		return u.corrupt(hdr.Name, "blob before manifest")
	case !m.References(d):
		return u.corrupt(hdr.Name, "blob not referenced by the manifest")
	}
	if _, ok := u.staged[d]; ok {
		return u.corrupt(hdr.Name, "duplicate blob")
	}

	size := descriptorSize(m, d)
	if hdr.Size != size {
		return storeerr.Errorf(storeerr.Integrity, "unpack", string(d), "entry holds %d bytes, descriptor declares %d", hdr.Size, size)
	}

	p := filepath.Join(u.bundle.dir, xpath.BlobFilename(d))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return storeerr.FromOS("stage blob", string(d), err)
	}
	defer f.Close()

	total := m.Size()
	vr := checksum.NewVerifyingReader(r, d, size, storeerr.Integrity)
	pr := xio.NewProgressReader(xio.NewContextReader(u.ctx, vr), func(n int64) {
		u.opts.progress(model.Progress{
			Stage:      model.StageUnpack,
			Digest:     d,
			BytesDone:  u.done + n,
			BytesTotal: total,
		})
	})

	w := &trackingWriter{w: f}
	n, err := io.Copy(w, pr)
	if err != nil {
		if w.err != nil {
			return storeerr.FromOS("stage blob", string(d), w.err)
		}
		return u.readError(hdr.Name, err)
	}
	if err = f.Close(); err != nil {
		return storeerr.FromOS("stage blob", string(d), err)
	}

	u.done += n
	u.staged[d] = StagedBlob{
		Digest: d,
		Size:   n,
		path:   p,
	}
	return nil
}

func (u *unpacker) finish() error {
	m := u.bundle.Manifest
	if m == nil {
		return u.corrupt("", "no manifest")
	}

	for _, layer := range m.Blobs() {
		blob, ok := u.staged[layer.Digest]
		if !ok {
			return u.corrupt(xpath.ArchiveBlobName(layer.Digest), "blob missing from archive")
		}
		u.bundle.blobs = append(u.bundle.blobs, blob)
	}

	if u.bundle.Identity.IsZero() && u.metadata != nil && u.metadata.ModelName != "" {
		id := model.NewIdentity(u.metadata.ModelName, u.metadata.ParameterSize)
		if err := id.Validate(); err != nil {
			return storeerr.New(storeerr.Corrupt, "unpack", u.path, err)
		}
		u.bundle.Identity = id
	}
	return nil
}

func (u *unpacker) corrupt(entry, reason string) error {
	subject := u.path
	if entry != "" {
		subject += ":" + entry
	}
	return storeerr.Errorf(storeerr.Corrupt, "unpack", subject, "%s", reason)
}

// readError reports failures of the archive stream itself as Corrupt.
func (u *unpacker) readError(entry string, err error) error {
	if storeerr.KindOf(err) != storeerr.Unknown || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return u.corrupt(entry, err.Error())
}

type trackingWriter struct {
	w   io.Writer
	err error
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

func descriptorSize(m *model.Manifest, d digest.Digest) int64 {
	for _, layer := range m.Blobs() {
		if layer.Digest == d {
			return layer.Size
		}
	}
	return -1
}
