// Package schema is the static allow-list of recognized metric fields.
// The validator and the edit reconciler consult it instead of reflecting
// over model types; a field that is not declared here does not exist.
package schema

// Kind describes how a field's values are represented and validated.
type Kind string

const (
	KindNumeric   Kind = "numeric"   // non-negative integer, nullable
	KindText      Kind = "text"      // free-form string
	KindTimestamp Kind = "timestamp" // raw reported timestamp
)

// Field describes one recognized metric field.
type Field struct {
	ID         string
	Label      string // human display name for CSV output
	Kind       Kind
	Aggregable bool // summed across entities in the national rollup
}

// Natural-key fields carried on every row. They identify a fact and are
// never treated as metric fields.
const (
	KeyEntity = "entity"
	KeyDate   = "date"
)

// fields is the full descriptor table, in canonical output order.
var fields = []Field{
	{ID: "positive", Label: "Positive", Kind: KindNumeric, Aggregable: true},
	{ID: "negative", Label: "Negative", Kind: KindNumeric, Aggregable: true},
	{ID: "pending", Label: "Pending", Kind: KindNumeric, Aggregable: true},
	{ID: "hospitalizedCurrently", Label: "Hospitalized – Currently", Kind: KindNumeric, Aggregable: true},
	{ID: "hospitalizedCumulative", Label: "Hospitalized – Cumulative", Kind: KindNumeric, Aggregable: true},
	{ID: "inIcuCurrently", Label: "In ICU – Currently", Kind: KindNumeric, Aggregable: true},
	{ID: "inIcuCumulative", Label: "In ICU – Cumulative", Kind: KindNumeric, Aggregable: true},
	{ID: "onVentilatorCurrently", Label: "On Ventilator – Currently", Kind: KindNumeric, Aggregable: true},
	{ID: "onVentilatorCumulative", Label: "On Ventilator – Cumulative", Kind: KindNumeric, Aggregable: true},
	{ID: "recovered", Label: "Recovered", Kind: KindNumeric, Aggregable: true},
	{ID: "death", Label: "Deaths", Kind: KindNumeric, Aggregable: true},
	{ID: "probableCases", Label: "Probable Cases", Kind: KindNumeric, Aggregable: true},
	{ID: "positiveCasesViral", Label: "Positive Cases (PCR)", Kind: KindNumeric, Aggregable: true},
	{ID: "totalTestsViral", Label: "Total Tests (PCR)", Kind: KindNumeric, Aggregable: true},
	{ID: "dataQualityGrade", Label: "Data Quality Grade", Kind: KindText},
	{ID: "publicNotes", Label: "Public Notes", Kind: KindText},
	{ID: "lastUpdateTime", Label: "Last Update ET", Kind: KindTimestamp},
	{ID: "dateChecked", Label: "Date Checked", Kind: KindTimestamp},
}

var byID = func() map[string]*Field {
	m := make(map[string]*Field, len(fields))
	for i := range fields {
		m[fields[i].ID] = &fields[i]
	}
	return m
}()

// All returns every declared field in canonical order.
func All() []Field { return fields }

// ByID returns the descriptor for id, or nil for unknown fields.
func ByID(id string) *Field { return byID[id] }

// Known reports whether id names a declared field or a natural key.
func Known(id string) bool {
	if id == KeyEntity || id == KeyDate {
		return true
	}
	return byID[id] != nil
}

// NumericIDs returns the ids of all numeric fields, in canonical order.
func NumericIDs() []string {
	var ids []string
	for _, f := range fields {
		if f.Kind == KindNumeric {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// AggregableIDs returns the ids of all fields summed by the rollup.
func AggregableIDs() []string {
	var ids []string
	for _, f := range fields {
		if f.Aggregable {
			ids = append(ids, f.ID)
		}
	}
	return ids
}
