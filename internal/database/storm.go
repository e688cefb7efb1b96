package database

import (
	"sort"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/json"
	"github.com/asdine/storm/v3/q"
	"github.com/gofrs/uuid"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type strm struct {
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(json.Codec)

// LockTimeout is how long opening waits for another process holding the database.
var LockTimeout = 2 * time.Second

func open(database string) (*storm.DB, error) {
	db, err := storm.Open(database, StormCodec, storm.BoltOptions(0o600, &bolt.Options{
		Timeout: LockTimeout,
	}))
	return db, errors.Wrap(err, "could not get database connection")
}

// StormInit initializes Storm database.
func StormInit(database string) error {
	db, err := open(database)
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Init(&model.Transfer{})
	return errors.Wrap(err, "could not init transfer index")
}

// StormReIndex rebuilds the indexes of Storm database.
func StormReIndex(database string) error {
	db, err := open(database)
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.ReIndex(&model.Transfer{})
	return errors.Wrap(err, "could not ReIndex transfers")
}

// StormOpen opens the Storm database.
func StormOpen(database string) (Client, error) {
	db, err := open(database)
	if err != nil {
		return nil, err
	}

	return &strm{
		db: db,
	}, nil
}

func (c *strm) Save(m model.Model) error {
	t := time.Now().UTC()
	m.SetUpdatedAt(t)

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
		m.SetCreatedAt(t)
	}

	return errors.Wrap(c.db.Save(m), "could not save the model")
}

func (c *strm) Delete(m model.Model) error {
	return errors.Wrap(c.db.DeleteStruct(m), "could not delete the model")
}

func (c *strm) Close() error {
	return c.db.Close()
}

func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

//
// Transfer
//

func (c *strm) ListTransfers(limit int) ([]*model.Transfer, error) {
	transfers := make([]*model.Transfer, 0)
	if err := c.db.All(&transfers); err != nil {
		return nil, errors.Wrap(err, "could not get all transfers")
	}

	newestFirst(transfers)
	if limit > 0 && len(transfers) > limit {
		transfers = transfers[:limit]
	}
	return transfers, nil
}

func (c *strm) FindTransfer(id string) (*model.Transfer, error) {
	var transfer model.Transfer
	err := c.db.One("ID", id, &transfer)
	return &transfer, errors.Wrap(err, "could not find transfer")
}

func (c *strm) FindTransfersByState(state string) ([]*model.Transfer, error) {
	return c.find("could not get transfers by state", q.Eq("State", state))
}

func (c *strm) FindTransfersByModel(name string) ([]*model.Transfer, error) {
	return c.find("could not get transfers by model", q.Eq("Model", name))
}

func (c *strm) DeleteTransfer(id string) error {
	err := c.db.Select(q.Eq("ID", id)).Delete(&model.Transfer{})
	return errors.Wrap(err, "could not delete transfer")
}

func (c *strm) find(msg string, matchers ...q.Matcher) ([]*model.Transfer, error) {
	transfers := make([]*model.Transfer, 0)
	err := c.db.Select(matchers...).Find(&transfers)
	if c.IsNotFound(err) {
		return transfers, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, msg)
	}

	newestFirst(transfers)
	return transfers, nil
}

func newestFirst(transfers []*model.Transfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		a, b := transfers[i].CreatedAt, transfers[j].CreatedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
}
