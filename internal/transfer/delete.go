package transfer

import (
	"context"
	"time"

	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
)

// A DeleteRequest removes a model and the blobs only it references.
type DeleteRequest struct {
	Identity model.Identity
	// Confirmed must be set, front-ends ask the user first.
	Confirmed bool
	Progress  chan<- model.Progress
}

// Delete runs Resolve, ReferenceCounts, then removes the manifest and the blobs no other manifest references.
func (e *Engine) Delete(ctx context.Context, req DeleteRequest) (*Result, error) {
	id := req.Identity.Normalize()
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if !req.Confirmed {
		return nil, storeerr.Errorf(storeerr.NotConfirmed, "delete", id.String(), "deletion must be confirmed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	t := e.begin(model.OperationDelete, id, "")
	res, err := e.delete(ctx, id, req)
	if res != nil {
		res.Duration = since(start)
	}
	e.finish(t, res, err)
	if err != nil {
		e.log.Errorf("delete %s: %s", id, err)
		return nil, err
	}

	e.log.Info(res.Summary())
	return res, nil
}

func (e *Engine) delete(ctx context.Context, id model.Identity, req DeleteRequest) (*Result, error) {
	progress := reporter{ctx: ctx, ch: req.Progress}

	progress.stage(model.StageResolve)
	m, err := e.manifests.Resolve(id)
	if err != nil {
		return nil, err
	}

	progress.stage(model.StageReferences)
	counts, err := e.catalog.ReferenceCounts(id)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress.stage(model.StageRemove)
	if err := e.manifests.Remove(id); err != nil {
		return nil, err
	}

	res := &Result{
		Operation: model.OperationDelete,
		Identity:  id,
		Blobs:     len(m.Blobs()),
		Bytes:     m.Size(),
	}

	// The manifest is gone, every unreferenced blob is attempted even when one fails.
	var done int64
	var first error
	for _, layer := range m.Blobs() {
		done += layer.Size
		if counts[layer.Digest] > 0 {
			e.log.Debugf("keeping %s (%d references)", layer.Digest, counts[layer.Digest])
			res.Kept++
			continue
		}

		if err := e.blobs.Delete(layer.Digest); err != nil {
			e.log.Errorf("delete %s: %s", layer.Digest, err)
			if first == nil {
				first = err
			}
			continue
		}
		res.Removed++

		progress.update(model.Progress{
			Stage:      model.StageRemove,
			Digest:     layer.Digest,
			BytesDone:  done,
			BytesTotal: res.Bytes,
		})
	}
	if first != nil {
		return nil, first
	}

	progress.stage(model.StageDone)
	return res, nil
}
