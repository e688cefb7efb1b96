package model

import "time"

// Transfer operations.
const (
	OperationExport = "export"
	OperationImport = "import"
	OperationDelete = "delete"
)

// Transfer states.
const (
	StatePending   = "pending"
	StateCommitted = "committed"
	StateFailed    = "failed"
)

// A Transfer is the journal record of one export, import or delete.
type Transfer struct {
	Base `json:",inline" storm:"inline"`

	Operation string `json:"operation" storm:"index"`
	State     string `json:"state"     storm:"index"`
	Model     string `json:"model"     storm:"index"`
	Archive   string `json:"archive,omitempty"`

	// Written lists the blobs this transfer published in the store.
	// A pending import that never completes leaves them for the sweeper.
	Written []string `json:"written,omitempty"`

	Blobs      int       `json:"blobs"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Finish marks the transfer committed, or failed when err is not nil.
func (t *Transfer) Finish(err error) {
	t.FinishedAt = time.Now().UTC()
	if err != nil {
		t.State = StateFailed
		t.Error = err.Error()
		return
	}
	t.State = StateCommitted
}
