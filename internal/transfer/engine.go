// Package transfer implements the operations mutating the model store:
// export, import, delete and garbage collection.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/catalog"
	"github.com/mdouchement/modelshuttle/internal/database"
	"github.com/mdouchement/modelshuttle/internal/manifest"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storage"
)

// A Controller is an Iversion Of Control pattern used to init the transfer package.
type Controller struct {
	Logger    logger.Logger
	Manifests *manifest.Store
	Blobs     storage.BlobStore
	// Database is the transfer journal, it is optional.
	Database database.Client
}

// An Engine is the only component mutating the store.
// Operations run one at a time.
type Engine struct {
	mu        sync.Mutex
	log       logger.Logger
	manifests *manifest.Store
	blobs     storage.BlobStore
	catalog   *catalog.Catalog
	db        database.Client
}

// New returns a new Engine.
func New(c Controller) *Engine {
	return &Engine{
		log:       c.Logger.WithPrefix("[transfer]"),
		manifests: c.Manifests,
		blobs:     c.Blobs,
		catalog:   catalog.New(c.Logger, c.Manifests, c.Blobs),
		db:        c.Database,
	}
}

// Catalog returns the catalog of the engine's store.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// List returns the models of the store.
func (e *Engine) List() ([]catalog.Entry, error) {
	return e.catalog.Entries()
}

// Transfers returns the journal, most recent first.
func (e *Engine) Transfers(limit int) ([]*model.Transfer, error) {
	if e.db == nil {
		return []*model.Transfer{}, nil
	}
	return e.db.ListTransfers(limit)
}

//
// Journal
//

func (e *Engine) begin(operation string, id model.Identity, archive string) *model.Transfer {
	t := &model.Transfer{
		Operation: operation,
		State:     model.StatePending,
		Archive:   archive,
	}
	if !id.IsZero() {
		t.Model = id.String()
	}
	e.save(t)
	return t
}

func (e *Engine) finish(t *model.Transfer, res *Result, err error) {
	if res != nil {
		t.Model = res.Identity.String()
		t.Blobs = res.Blobs
		t.Bytes = res.Bytes
		res.TransferID = t.ID
	}
	t.Finish(err)
	e.save(t)
}

// save records t in the journal. The journal is informative, its failures never abort an operation.
func (e *Engine) save(t *model.Transfer) {
	if e.db == nil {
		return
	}
	if err := e.db.Save(t); err != nil {
		e.log.Errorf("journal: %s", err)
	}
}

//
// Progress
//

type reporter struct {
	ctx context.Context
	ch  chan<- model.Progress
}

// stage blocks until the consumer receives the transition or ctx is done.
func (r reporter) stage(stage string) {
	if r.ch == nil {
		return
	}
	select {
	case r.ch <- model.Progress{Stage: stage}:
	case <-r.ctx.Done():
	}
}

// update is dropped when the consumer is busy.
func (r reporter) update(p model.Progress) {
	if r.ch == nil {
		return
	}
	select {
	case r.ch <- p:
	default:
	}
}

func since(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
