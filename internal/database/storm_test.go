package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/modelshuttle/internal/database"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) database.Client {
	p := filepath.Join(t.TempDir(), "modelshuttle.db")
	require.NoError(t, database.StormInit(p))

	db, err := database.StormOpen(p)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTransferJournal(t *testing.T) {
	db := open(t)

	first := &model.Transfer{Operation: model.OperationImport, State: model.StatePending, Model: "mistral:7b"}
	require.NoError(t, db.Save(first))
	require.NotEmpty(t, first.ID)
	require.NotNil(t, first.CreatedAt)

	time.Sleep(10 * time.Millisecond)
	second := &model.Transfer{Operation: model.OperationExport, State: model.StatePending, Model: "llama:13b"}
	require.NoError(t, db.Save(second))

	first.Written = []string{"sha256:aa"}
	first.Finish(nil)
	require.NoError(t, db.Save(first))

	found, err := db.FindTransfer(first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCommitted, found.State)
	assert.Equal(t, []string{"sha256:aa"}, found.Written)

	all, err := db.ListTransfers(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	limited, err := db.ListTransfers(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	pending, err := db.FindTransfersByState(model.StatePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	failed, err := db.FindTransfersByState(model.StateFailed)
	require.NoError(t, err)
	assert.Empty(t, failed)

	byModel, err := db.FindTransfersByModel("mistral:7b")
	require.NoError(t, err)
	require.Len(t, byModel, 1)

	require.NoError(t, db.DeleteTransfer(first.ID))
	_, err = db.FindTransfer(first.ID)
	assert.True(t, db.IsNotFound(err))
}

func TestReIndex(t *testing.T) {
	p := filepath.Join(t.TempDir(), "modelshuttle.db")
	require.NoError(t, database.StormInit(p))
	require.NoError(t, database.StormReIndex(p))
}
