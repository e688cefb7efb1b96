package serializer

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mdouchement/modelshuttle/internal/catalog"
	"github.com/mdouchement/modelshuttle/internal/transfer"
)

// TextModels returns the text serialized form of the given entries.
func TextModels(entries []catalog.Entry) string {
	sl := make([]string, 0, len(entries))

	for _, entry := range entries {
		sl = append(sl, entry.Identity.String())
	}

	return strings.Join(sl, "\n")
}

// Models returns the serialized form of the given entries.
func Models(entries []catalog.Entry) []map[string]interface{} {
	sl := make([]map[string]interface{}, 0, len(entries))

	for _, entry := range entries {
		sl = append(sl, Model(entry))
	}

	return sl
}

// Model returns the serialized form of the given entry.
func Model(entry catalog.Entry) map[string]interface{} {
	return map[string]interface{}{
		"name":       entry.Identity.String(),
		"identity":   entry.Identity,
		"digest":     entry.Digest,
		"bytes":      entry.Size,
		"size":       humanize.IBytes(uint64(entry.Size)),
		"layers":     entry.Layers,
		"incomplete": entry.Missing > 0,
	}
}

// Result returns the serialized form of an operation result.
func Result(res *transfer.Result) map[string]interface{} {
	return map[string]interface{}{
		"operation":   res.Operation,
		"name":        res.Identity.String(),
		"archive":     res.Archive,
		"blobs":       res.Blobs,
		"bytes":       res.Bytes,
		"written":     res.Written,
		"skipped":     res.Skipped,
		"removed":     res.Removed,
		"kept":        res.Kept,
		"duration":    res.Duration.String(),
		"transfer_id": res.TransferID,
		"summary":     res.Summary(),
	}
}
