package database

import (
	"github.com/mdouchement/modelshuttle/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Save inserts or updates the entry in database with the given model.
		Save(m model.Model) error
		// Delete deletes the entry in database with the given model.
		Delete(m model.Model) error
		// Close the database.
		Close() error
		// IsNotFound returns true if err is nil or a not found error.
		IsNotFound(err error) bool

		TransferInteraction
	}

	// A TransferInteraction defines all the methods used to interact with the transfer journal.
	TransferInteraction interface {
		// ListTransfers returns the most recent transfers first, at most limit when limit is positive.
		ListTransfers(limit int) ([]*model.Transfer, error)
		FindTransfer(id string) (*model.Transfer, error)
		FindTransfersByState(state string) ([]*model.Transfer, error)
		FindTransfersByModel(name string) ([]*model.Transfer, error)
		DeleteTransfer(id string) error
	}
)
