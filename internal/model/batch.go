package model

import "time"

// EntryType tags what kind of write produced a batch.
type EntryType string

const (
	EntryTypeDaily EntryType = "daily"
	EntryTypeEdit  EntryType = "edit"
)

// Regular reports whether the entry type participates in latest-state
// resolution. Other types (test pushes, replays) are ignored by readers.
func (t EntryType) Regular() bool {
	return t == EntryTypeDaily || t == EntryTypeEdit
}

// Batch is an immutable, append-only ledger entry. Its id is assigned by
// the store at creation, increases monotonically and is never reused, so
// id order equals creation order.
type Batch struct {
	ID          int64      `json:"batchId"`
	CreatedAt   time.Time  `json:"createdAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	IsPublished bool       `json:"isPublished"`
	IsRevision  bool       `json:"isRevision"`
	EntryType   EntryType  `json:"dataEntryType"`
	Note        string     `json:"batchNote"`
	User        string     `json:"user"`
	Link        string     `json:"link,omitempty"`
	Category    string     `json:"category,omitempty"`

	// Edit summary, only meaningful for edit batches.
	ChangedFields    []string `json:"changedFields,omitempty"`
	ChangedDateRange string   `json:"changedDateRange,omitempty"`
	RowsEdited       int      `json:"numRowsEdited,omitempty"`
}

// BatchContext is the submitter-supplied portion of a batch: everything
// except the id, timestamps and computed summary.
type BatchContext struct {
	EntryType    EntryType `json:"dataEntryType"`
	Note         string    `json:"batchNote"`
	User         string    `json:"user"`
	Link         string    `json:"link,omitempty"`
	Category     string    `json:"category,omitempty"`
	TargetEntity string    `json:"entity,omitempty"`
	Publish      bool      `json:"publish,omitempty"`
}
