package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mdouchement/modelshuttle/internal/model"
)

// A Result summarizes a successful operation.
type Result struct {
	Operation string         `json:"operation"`
	Identity  model.Identity `json:"identity"`
	Archive   string         `json:"archive,omitempty"`
	// Blobs and Bytes describe the model's blob set.
	Blobs int   `json:"blobs"`
	Bytes int64 `json:"bytes"`
	// Written blobs were stored, Skipped were already present and verified.
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	// Removed blobs were deleted, Kept are still referenced by another model.
	Removed    int           `json:"removed"`
	Kept       int           `json:"kept"`
	Duration   time.Duration `json:"duration"`
	TransferID string        `json:"transfer_id,omitempty"`
}

// Summary returns a one line human description.
func (r *Result) Summary() string {
	var b strings.Builder

	switch r.Operation {
	case model.OperationExport:
		fmt.Fprintf(&b, "exported %s to %s", r.Identity, r.Archive)
	case model.OperationImport:
		fmt.Fprintf(&b, "imported %s from %s", r.Identity, r.Archive)
	case model.OperationDelete:
		fmt.Fprintf(&b, "deleted %s", r.Identity)
	default:
		fmt.Fprintf(&b, "%s %s", r.Operation, r.Identity)
	}

	fmt.Fprintf(&b, " (%d blobs, %s", r.Blobs, humanize.IBytes(uint64(r.Bytes)))
	switch r.Operation {
	case model.OperationImport:
		fmt.Fprintf(&b, ", %d written, %d already present", r.Written, r.Skipped)
	case model.OperationDelete:
		fmt.Fprintf(&b, ", %d removed, %d still referenced", r.Removed, r.Kept)
	}
	fmt.Fprintf(&b, ") in %s", r.Duration)
	return b.String()
}
