package model

import "github.com/opencontainers/go-digest"

// Progress stages.
const (
	StageResolve       = "resolve"
	StageVerifySource  = "verify source blobs"
	StagePack          = "pack"
	StageUnpack        = "unpack"
	StageIdentity      = "determine target identity"
	StageConflict      = "check conflict"
	StageWriteBlobs    = "write blobs"
	StageWriteManifest = "write manifest"
	StageReferences    = "count references"
	StageRemove        = "remove"
	StageDone          = "done"
)

// A Progress is emitted while an operation runs.
type Progress struct {
	Stage      string        `json:"stage"`
	Digest     digest.Digest `json:"digest,omitempty"`
	BytesDone  int64         `json:"bytes_done"`
	BytesTotal int64         `json:"bytes_total"`
}

// A ProgressFunc receives progress updates.
type ProgressFunc func(Progress)
