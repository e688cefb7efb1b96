package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storage"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/xio"
	"github.com/mdouchement/modelshuttle/internal/xpath"
)

// Pack writes m, tagged with id, and all the blobs it references into dest.
// The archive is built next to dest and renamed once complete.
func Pack(ctx context.Context, m *model.Manifest, id model.Identity, blobs storage.BlobStore, dest string, opts Options) error {
	layers := m.Blobs()

	// Nothing is written until every blob is known to be there.
	var total int64
	for _, layer := range layers {
		size, err := blobs.Size(layer.Digest)
		if storeerr.Is(err, storeerr.NotFound) {
			return storeerr.New(storeerr.IncompleteSource, "pack", string(layer.Digest), err)
		}
		if err != nil {
			return err
		}
		if size != layer.Size {
			return storeerr.Errorf(storeerr.IncompleteSource, "pack", string(layer.Digest), "stored size %d does not match descriptor size %d", size, layer.Size)
		}
		total += size
	}

	if opts.Compression == Auto {
		opts.Compression = CompressionFromPath(dest)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*.partial")
	if err != nil {
		return storeerr.FromOS("pack", dest, err)
	}
	defer os.Remove(tmp.Name()) // No-op once renamed.

	err = write(ctx, tmp, m, id, layers, total, blobs, opts)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0o644)
	}
	if err != nil {
		return storeerr.FromOS("pack", dest, err)
	}

	return storeerr.FromOS("publish archive", dest, os.Rename(tmp.Name(), dest))
}

func write(ctx context.Context, w io.Writer, m *model.Manifest, id model.Identity, layers []model.Layer, total int64, blobs storage.BlobStore, opts Options) error {
	cw, err := compress(w, opts.Compression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	err = tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeReg,
		Name:       xpath.ArchiveManifest,
		Size:       int64(len(m.Raw())),
		Mode:       0o644,
		ModTime:    epoch,
		Format:     tar.FormatPAX,
		PAXRecords: identityRecords(id),
	})
	if err != nil {
		return err
	}
	if _, err = tw.Write(m.Raw()); err != nil {
		return err
	}

	var done int64
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			return err
		}

		err = tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     xpath.ArchiveBlobName(layer.Digest),
			Size:     layer.Size,
			Mode:     0o644,
			ModTime:  epoch,
		})
		if err != nil {
			return err
		}

		n, err := copyBlob(ctx, tw, layer, blobs, func(n int64) {
			opts.progress(model.Progress{
				Stage:      model.StagePack,
				Digest:     layer.Digest,
				BytesDone:  done + n,
				BytesTotal: total,
			})
		})
		if err != nil {
			return err
		}
		done += n
	}

	if err = tw.Close(); err != nil {
		return err
	}
	return cw.Close()
}

func copyBlob(ctx context.Context, w io.Writer, layer model.Layer, blobs storage.BlobStore, fn func(int64)) (int64, error) {
	rc, err := blobs.Open(layer.Digest)
	if storeerr.Is(err, storeerr.NotFound) {
		// Removed by the runtime since the check.
		return 0, storeerr.New(storeerr.IncompleteSource, "pack", string(layer.Digest), err)
	}
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	// Open verifies the content while it is streamed.
	r := xio.NewProgressReader(xio.NewContextReader(ctx, rc), fn)
	return io.Copy(w, r)
}
