// Package export renders resolved facts and rollups as CSV with human
// display labels.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/rollup"
	"github.com/civistat/civistat/internal/schema"
)

// WriteDaily writes one CSV row per resolved fact, columns in canonical
// schema order plus the derived total-results and eastern-time columns.
// Unset values render as empty cells.
func WriteDaily(w io.Writer, facts []model.Fact, entities map[string]model.Entity) error {
	cw := csv.NewWriter(w)

	header := []string{"Date", "Entity"}
	for _, f := range schema.All() {
		header = append(header, f.Label)
	}
	header = append(header, "Total Results", "Last Update ET")
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for i := range facts {
		f := &facts[i]
		record := []string{string(f.Date), f.Entity}
		for _, field := range schema.All() {
			record = append(record, fieldCell(f, field))
		}
		record = append(record,
			numericCell(f.TotalResults(entities[f.Entity].TotalResultsSource)),
			f.LastUpdateEastern(),
		)
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "export: write row %s %s", f.Entity, f.Date)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// WriteRollup writes the national daily series, one row per date.
func WriteRollup(w io.Writer, rows []rollup.AggregateRow) error {
	cw := csv.NewWriter(w)

	header := []string{"Date", "Entities"}
	for _, id := range schema.AggregableIDs() {
		header = append(header, schema.ByID(id).Label)
	}
	header = append(header, "Total Results")
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, row := range rows {
		record := []string{string(row.Date), strconv.Itoa(row.EntityCount)}
		for _, id := range schema.AggregableIDs() {
			record = append(record, strconv.FormatInt(row.Sums[id], 10))
		}
		record = append(record, strconv.FormatInt(row.TotalResults, 10))
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "export: write row %s", row.Date)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

func fieldCell(f *model.Fact, field schema.Field) string {
	switch field.Kind {
	case schema.KindNumeric:
		return numericCell(f.Numeric(field.ID))
	case schema.KindText:
		return f.Text(field.ID)
	case schema.KindTimestamp:
		if t := f.Timestamp(field.ID); t != nil {
			return t.UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	return ""
}

func numericCell(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
