package transfer

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdouchement/modelshuttle/internal/archive"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/xio"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// An ImportRequest unpacks an archive into the store.
type ImportRequest struct {
	Archive string
	// Override replaces the identity carried by the archive.
	Override  *model.Identity
	Overwrite bool
	Progress  chan<- model.Progress
}

// Import runs Unpack&Verify, DetermineTargetIdentity, CheckConflict, WriteBlobs and WriteManifest.
// The model becomes resolvable only once all its blobs are stored.
func (e *Engine) Import(ctx context.Context, req ImportRequest) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	path, err := filepath.Abs(req.Archive)
	if err != nil {
		return nil, errors.Wrap(err, "import")
	}

	t := e.begin(model.OperationImport, model.Identity{}, path)
	res, err := e.importArchive(ctx, t, path, req)
	if res != nil {
		res.Duration = since(start)
	}
	e.finish(t, res, err)
	if err != nil {
		e.log.Errorf("import %s: %s", path, err)
		return nil, err
	}

	e.log.Info(res.Summary())
	return res, nil
}

func (e *Engine) importArchive(ctx context.Context, t *model.Transfer, path string, req ImportRequest) (*Result, error) {
	progress := reporter{ctx: ctx, ch: req.Progress}

	progress.stage(model.StageUnpack)
	bundle, err := archive.Unpack(ctx, path, e.blobs.TempDir(), archive.Options{
		Progress: progress.update,
	})
	if err != nil {
		return nil, err
	}
	defer bundle.Close()

	progress.stage(model.StageIdentity)
	id, err := TargetIdentity(req.Override, bundle.Identity, path)
	if err != nil {
		return nil, err
	}
	t.Model = id.String()
	e.save(t)

	progress.stage(model.StageConflict)
	if e.manifests.Exists(id) && !req.Overwrite {
		return nil, storeerr.Errorf(storeerr.AlreadyExists, "import", id.String(), "model already exists")
	}

	res := &Result{
		Operation: model.OperationImport,
		Identity:  id,
		Archive:   path,
		Blobs:     len(bundle.Blobs()),
		Bytes:     bundle.Size(),
	}

	progress.stage(model.StageWriteBlobs)
	var written []digest.Digest
	var done int64
	for _, blob := range bundle.Blobs() {
		wrote, err := e.writeBlob(ctx, blob, func(n int64) {
			progress.update(model.Progress{
				Stage:      model.StageWriteBlobs,
				Digest:     blob.Digest,
				BytesDone:  done + n,
				BytesTotal: res.Bytes,
			})
		})
		if err != nil {
			t.Written = e.rollback(written)
			return nil, err
		}
		done += blob.Size

		if !wrote {
			res.Skipped++
			continue
		}
		res.Written++
		written = append(written, blob.Digest)
		t.Written = append(t.Written, string(blob.Digest))
		e.save(t)
	}

	progress.stage(model.StageWriteManifest)
	if err := e.manifests.Write(id, bundle.Manifest); err != nil {
		t.Written = e.rollback(written)
		return nil, err
	}

	progress.stage(model.StageDone)
	return res, nil
}

// writeBlob stores blob unless the store already holds a verified copy.
func (e *Engine) writeBlob(ctx context.Context, blob archive.StagedBlob, fn func(int64)) (bool, error) {
	if e.blobs.Exists(blob.Digest) {
		err := e.blobs.Verify(blob.Digest)
		switch {
		case err == nil:
			e.log.Debugf("%s already present", blob.Digest)
			return false, nil
		case storeerr.Is(err, storeerr.Integrity):
			e.log.Infof("replacing corrupt blob %s", blob.Digest)
		case storeerr.Is(err, storeerr.NotFound):
			// Removed by the runtime since the check.
		default:
			return false, err
		}
	}

	rc, err := blob.Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()

	_, err = e.blobs.Write(ctx, blob.Digest, xio.NewProgressReader(rc, fn))
	return err == nil, err
}

// rollback deletes the written blobs no manifest references and returns those left in the store.
func (e *Engine) rollback(written []digest.Digest) []string {
	if len(written) == 0 {
		return nil
	}

	counts, err := e.catalog.ReferenceCounts()
	if err != nil {
		e.log.Errorf("rollback: %s (leaving %d blobs to the sweeper)", err, len(written))
		return digestStrings(written)
	}

	var left []string
	for _, d := range written {
		if counts[d] > 0 {
			continue
		}
		if err := e.blobs.Delete(d); err != nil {
			e.log.Errorf("rollback: %s", err)
			left = append(left, string(d))
			continue
		}
		e.log.Debugf("rollback: removed %s", d)
	}
	return left
}

// TargetIdentity returns the identity an archive is imported as: the override, else the identity
// carried by the archive, else the one inferred from its file name (`name-tag.tar.gz`), else `stem:latest`.
func TargetIdentity(override *model.Identity, embedded model.Identity, path string) (model.Identity, error) {
	var id model.Identity
	switch {
	case override != nil && !override.IsZero():
		id = override.Normalize()
	case !embedded.IsZero():
		id = embedded.Normalize()
	default:
		stem := archiveStem(filepath.Base(path))
		id = model.NewIdentity(stem, model.DefaultTag)
		if name, tag, found := cutLast(stem, "-"); found && name != "" && tag != "" {
			id = model.NewIdentity(name, tag)
		}
	}

	if err := id.Validate(); err != nil {
		return model.Identity{}, storeerr.New(storeerr.Corrupt, "determine identity", path, err)
	}
	return id, nil
}

func archiveStem(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tar.zst", ".tgz", ".tzst", ".tar", ".gz", ".zst"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

func digestStrings(digests []digest.Digest) []string {
	s := make([]string, 0, len(digests))
	for _, d := range digests {
		s = append(s, string(d))
	}
	return s
}
