package serializer

import (
	"github.com/mdouchement/modelshuttle/internal/model"
)

// Transfers returns the serialized form of the given models.
func Transfers(transfers []*model.Transfer) []map[string]interface{} {
	sl := make([]map[string]interface{}, 0, len(transfers))

	for _, transfer := range transfers {
		sl = append(sl, Transfer(transfer))
	}

	return sl
}

// Transfer returns the serialized form of the given model.
func Transfer(transfer *model.Transfer) map[string]interface{} {
	m := map[string]interface{}{
		"id":         transfer.ID,
		"operation":  transfer.Operation,
		"state":      transfer.State,
		"model":      transfer.Model,
		"blobs":      transfer.Blobs,
		"bytes":      transfer.Bytes,
		"created_at": transfer.CreatedAt,
	}
	if transfer.Archive != "" {
		m["archive"] = transfer.Archive
	}
	if transfer.Error != "" {
		m["error"] = transfer.Error
	}
	if !transfer.FinishedAt.IsZero() {
		m["finished_at"] = transfer.FinishedAt
	}
	return m
}
