package model

import (
	"fmt"
	"strings"

	"github.com/civistat/civistat/internal/schema"
)

// ChangedValue records one field-level change within an edited row.
type ChangedValue struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ChangedRow records one edited (entity, date) row and its field changes.
type ChangedRow struct {
	Date    Date           `json:"date"`
	Entity  string         `json:"entity"`
	Changed []ChangedValue `json:"changedValues"`
}

// EditDiff is the set of changes an edit batch made: rows that already
// existed and changed, and rows that did not exist before.
type EditDiff struct {
	ChangedRows []ChangedRow `json:"changedRows"`
	NewRows     []Fact       `json:"newRows"`
}

// Empty reports whether the diff materialized nothing.
func (d *EditDiff) Empty() bool {
	return len(d.ChangedRows) == 0 && len(d.NewRows) == 0
}

// PlainText renders the diff for chat notifications.
func (d *EditDiff) PlainText() string {
	var b strings.Builder
	if len(d.ChangedRows) > 0 {
		b.WriteString("Changed rows:\n")
		for _, row := range d.ChangedRows {
			fmt.Fprintf(&b, "  %s %s\n", row.Date, row.Entity)
			for _, cv := range row.Changed {
				old := cv.Old
				if old == "" {
					old = "(empty)"
				}
				nw := cv.New
				if nw == "" {
					nw = "(empty)"
				}
				fmt.Fprintf(&b, "    %s: %s -> %s\n", cv.Field, old, nw)
			}
		}
	}
	if len(d.NewRows) > 0 {
		b.WriteString("New rows:\n")
		for _, f := range d.NewRows {
			fmt.Fprintf(&b, "  %s %s\n", f.Date, f.Entity)
		}
	}
	return b.String()
}

// FieldString renders one schema field of a fact for diff output; unset
// values render as "".
func FieldString(f *Fact, id string) string {
	desc := schema.ByID(id)
	if desc == nil {
		return ""
	}
	switch desc.Kind {
	case schema.KindNumeric:
		if v := f.Numeric(id); v != nil {
			return fmt.Sprintf("%d", *v)
		}
	case schema.KindText:
		return f.Text(id)
	case schema.KindTimestamp:
		if v := f.Timestamp(id); v != nil {
			return v.UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	return ""
}
