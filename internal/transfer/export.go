package transfer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/mdouchement/modelshuttle/internal/archive"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/pkg/errors"
)

// An ExportRequest packs a model into an archive.
type ExportRequest struct {
	Identity    model.Identity
	Destination string
	Overwrite   bool
	// Compression defaults to the one matching the destination extension.
	Compression archive.Compression
	// Verify rehashes every blob before packing. Blobs are always verified while packed,
	// Verify only fails before the archive is started.
	Verify   bool
	Progress chan<- model.Progress
}

// Export runs Resolve, VerifySourceBlobs and Pack.
// Nothing is left at the destination on failure.
func (e *Engine) Export(ctx context.Context, req ExportRequest) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	id := req.Identity.Normalize()
	if err := id.Validate(); err != nil {
		return nil, err
	}

	dest, err := filepath.Abs(req.Destination)
	if err != nil {
		return nil, errors.Wrap(err, "export")
	}

	t := e.begin(model.OperationExport, id, dest)
	res, err := e.export(ctx, id, dest, req)
	if res != nil {
		res.Duration = since(start)
	}
	e.finish(t, res, err)
	if err != nil {
		e.log.Errorf("export %s: %s", id, err)
		return nil, err
	}

	e.log.Info(res.Summary())
	return res, nil
}

func (e *Engine) export(ctx context.Context, id model.Identity, dest string, req ExportRequest) (*Result, error) {
	progress := reporter{ctx: ctx, ch: req.Progress}

	if !req.Overwrite {
		if _, err := os.Stat(dest); err == nil {
			return nil, storeerr.Errorf(storeerr.AlreadyExists, "export", dest, "archive already exists")
		}
	}

	progress.stage(model.StageResolve)
	m, err := e.manifests.Resolve(id)
	if err != nil {
		return nil, err
	}

	progress.stage(model.StageVerifySource)
	if err := e.verifySource(ctx, m, req.Verify); err != nil {
		return nil, err
	}

	progress.stage(model.StagePack)
	err = archive.Pack(ctx, m, id, e.blobs, dest, archive.Options{
		Compression: req.Compression,
		Progress:    progress.update,
	})
	if err != nil {
		return nil, err
	}

	progress.stage(model.StageDone)
	return &Result{
		Operation: model.OperationExport,
		Identity:  id,
		Archive:   dest,
		Blobs:     len(m.Blobs()),
		Bytes:     m.Size(),
	}, nil
}

// verifySource checks that every blob is present with its declared size, and its content when full is set.
func (e *Engine) verifySource(ctx context.Context, m *model.Manifest, full bool) error {
	for _, layer := range m.Blobs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		size, err := e.blobs.Size(layer.Digest)
		if storeerr.Is(err, storeerr.NotFound) {
			return storeerr.New(storeerr.IncompleteSource, "verify source", string(layer.Digest), err)
		}
		if err != nil {
			return err
		}
		if size != layer.Size {
			return storeerr.Errorf(storeerr.IncompleteSource, "verify source", string(layer.Digest), "stored size %d does not match descriptor size %d", size, layer.Size)
		}

		if full {
			e.log.Debugf("verifying %s", layer.Digest)
			if err := e.blobs.Verify(layer.Digest); err != nil {
				return err
			}
		}
	}
	return nil
}
