package transfer

import (
	"context"
	"time"

	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

var errAbandoned = errors.New("transfer abandoned")

// DefaultMaxAge is the age after which temporary files and pending imports are considered abandoned.
const DefaultMaxAge = time.Hour

// GCOptions tune Collect.
type GCOptions struct {
	MaxAge time.Duration
	// Orphans also removes the blobs no manifest references.
	// The model runtime may be downloading a model whose manifest is not written yet, so it is opt-in.
	Orphans bool
	// DryRun reports without removing anything.
	DryRun bool
}

// A GCReport describes what Collect removed, or would remove on a dry run.
type GCReport struct {
	TempFiles   int             `json:"temp_files"`
	Abandoned   int             `json:"abandoned"`
	Orphans     []digest.Digest `json:"orphans"`
	Removed     int             `json:"removed"`
	Directories int             `json:"directories"`
}

// Collect sweeps what interrupted operations left behind:
// temporary files, blobs of abandoned imports, empty manifest directories and, on demand, orphan blobs.
func (e *Engine) Collect(ctx context.Context, opts GCOptions) (*GCReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	report := &GCReport{
		Orphans: []digest.Digest{},
	}

	if !opts.DryRun {
		n, err := e.blobs.Cleanup(opts.MaxAge)
		if err != nil {
			return nil, err
		}
		report.TempFiles = n
	}

	if err := e.collectAbandoned(ctx, opts, report); err != nil {
		return nil, err
	}

	if opts.Orphans || opts.DryRun {
		orphans, err := e.catalog.Orphans()
		if err != nil {
			return nil, err
		}
		report.Orphans = append(report.Orphans, orphans...)

		if opts.Orphans && !opts.DryRun {
			for _, d := range orphans {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if err := e.blobs.Delete(d); err != nil {
					return nil, err
				}
				report.Removed++
			}
		}
	}

	if !opts.DryRun {
		n, err := e.manifests.Prune()
		if err != nil {
			return nil, err
		}
		report.Directories = n
	}

	e.log.Infof("gc: %d temp files, %d abandoned transfers, %d orphans, %d blobs removed, %d directories pruned",
		report.TempFiles, report.Abandoned, len(report.Orphans), report.Removed, report.Directories)
	return report, nil
}

// collectAbandoned fails the pending transfers older than MaxAge and deletes the blobs their imports wrote
// which are still unreferenced.
func (e *Engine) collectAbandoned(ctx context.Context, opts GCOptions, report *GCReport) error {
	if e.db == nil {
		return nil
	}

	pending, err := e.db.FindTransfersByState(model.StatePending)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(-opts.MaxAge)
	var abandoned []*model.Transfer
	for _, t := range pending {
		if t.UpdatedAt != nil && t.UpdatedAt.After(deadline) {
			continue
		}
		abandoned = append(abandoned, t)
	}
	report.Abandoned = len(abandoned)
	if len(abandoned) == 0 || opts.DryRun {
		return nil
	}

	counts, err := e.catalog.ReferenceCounts()
	if err != nil {
		return err
	}

	for _, t := range abandoned {
		if err := ctx.Err(); err != nil {
			return err
		}

		var left []string
		for _, s := range t.Written {
			d := digest.Digest(s)
			if d.Validate() != nil || counts[d] > 0 {
				continue
			}
			if err := e.blobs.Delete(d); err != nil {
				e.log.Errorf("gc: %s", err)
				left = append(left, s)
				continue
			}
			report.Removed++
		}

		e.log.Infof("gc: abandoned %s transfer %s of %s", t.Operation, t.ID, t.Model)
		t.Written = left
		t.Finish(errAbandoned)
		e.save(t)
	}
	return nil
}
