package model

import (
	"time"
	_ "time/tzdata" // eastern-time rendering must work on zoneless hosts

	"github.com/civistat/civistat/internal/schema"
)

// eastern is the reporting time zone for localized timestamps.
var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Fact is one entity's reported metrics for one date, owned by exactly one
// batch. Facts are never mutated after creation; an edit produces a new
// fact under a new batch. Composite identity is (entity, batch id, date).
type Fact struct {
	Entity  string `json:"entity"`
	BatchID int64  `json:"batchId"`
	Date    Date   `json:"date"`

	Positive               *int64 `json:"positive,omitempty"`
	Negative               *int64 `json:"negative,omitempty"`
	Pending                *int64 `json:"pending,omitempty"`
	HospitalizedCurrently  *int64 `json:"hospitalizedCurrently,omitempty"`
	HospitalizedCumulative *int64 `json:"hospitalizedCumulative,omitempty"`
	InICUCurrently         *int64 `json:"inIcuCurrently,omitempty"`
	InICUCumulative        *int64 `json:"inIcuCumulative,omitempty"`
	OnVentilatorCurrently  *int64 `json:"onVentilatorCurrently,omitempty"`
	OnVentilatorCumulative *int64 `json:"onVentilatorCumulative,omitempty"`
	Recovered              *int64 `json:"recovered,omitempty"`
	Death                  *int64 `json:"death,omitempty"`
	ProbableCases          *int64 `json:"probableCases,omitempty"`
	PositiveCasesViral     *int64 `json:"positiveCasesViral,omitempty"`
	TotalTestsViral        *int64 `json:"totalTestsViral,omitempty"`

	DataQualityGrade string `json:"dataQualityGrade,omitempty"`
	PublicNotes      string `json:"publicNotes,omitempty"`

	LastUpdateTime *time.Time `json:"lastUpdateTime,omitempty"`
	DateChecked    *time.Time `json:"dateChecked,omitempty"`
}

// numericPtr maps a numeric field id to its struct slot. This switch is the
// explicit counterpart of the schema allow-list; adding a field means adding
// it here and in the schema table.
func (f *Fact) numericPtr(id string) **int64 {
	switch id {
	case "positive":
		return &f.Positive
	case "negative":
		return &f.Negative
	case "pending":
		return &f.Pending
	case "hospitalizedCurrently":
		return &f.HospitalizedCurrently
	case "hospitalizedCumulative":
		return &f.HospitalizedCumulative
	case "inIcuCurrently":
		return &f.InICUCurrently
	case "inIcuCumulative":
		return &f.InICUCumulative
	case "onVentilatorCurrently":
		return &f.OnVentilatorCurrently
	case "onVentilatorCumulative":
		return &f.OnVentilatorCumulative
	case "recovered":
		return &f.Recovered
	case "death":
		return &f.Death
	case "probableCases":
		return &f.ProbableCases
	case "positiveCasesViral":
		return &f.PositiveCasesViral
	case "totalTestsViral":
		return &f.TotalTestsViral
	}
	return nil
}

// Numeric returns the value of a numeric field by schema id, nil when the
// field is unset or unknown.
func (f *Fact) Numeric(id string) *int64 {
	if p := f.numericPtr(id); p != nil {
		return *p
	}
	return nil
}

// SetNumeric sets a numeric field by schema id. Unknown ids are ignored;
// callers validate against the schema first.
func (f *Fact) SetNumeric(id string, v *int64) {
	if p := f.numericPtr(id); p != nil {
		*p = v
	}
}

// Text returns the value of a text field by schema id.
func (f *Fact) Text(id string) string {
	switch id {
	case "dataQualityGrade":
		return f.DataQualityGrade
	case "publicNotes":
		return f.PublicNotes
	}
	return ""
}

// SetText sets a text field by schema id.
func (f *Fact) SetText(id, v string) {
	switch id {
	case "dataQualityGrade":
		f.DataQualityGrade = v
	case "publicNotes":
		f.PublicNotes = v
	}
}

// Timestamp returns the value of a timestamp field by schema id.
func (f *Fact) Timestamp(id string) *time.Time {
	switch id {
	case "lastUpdateTime":
		return f.LastUpdateTime
	case "dateChecked":
		return f.DateChecked
	}
	return nil
}

// SetTimestamp sets a timestamp field by schema id.
func (f *Fact) SetTimestamp(id string, v *time.Time) {
	switch id {
	case "lastUpdateTime":
		f.LastUpdateTime = v
	case "dateChecked":
		f.DateChecked = v
	}
}

// FieldEqual compares one schema field between two facts. The batch id is
// not a schema field, so version churn never counts as a difference.
func (f *Fact) FieldEqual(other *Fact, id string) bool {
	desc := schema.ByID(id)
	if desc == nil {
		return true
	}
	switch desc.Kind {
	case schema.KindNumeric:
		a, b := f.Numeric(id), other.Numeric(id)
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return *a == *b
	case schema.KindText:
		return f.Text(id) == other.Text(id)
	case schema.KindTimestamp:
		a, b := f.Timestamp(id), other.Timestamp(id)
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return a.Equal(*b)
	}
	return true
}

// TotalResults computes the derived total-results value under the owning
// entity's configured source. Computed on read, never stored.
func (f *Fact) TotalResults(src TotalResultsSource) *int64 {
	if !src.IsPosNegSum() {
		return f.Numeric(src.FieldID())
	}
	if f.Positive == nil && f.Negative == nil {
		return nil
	}
	var total int64
	if f.Positive != nil {
		total += *f.Positive
	}
	if f.Negative != nil {
		total += *f.Negative
	}
	return &total
}

// LastUpdateEastern renders the raw last-update timestamp in US eastern
// time, e.g. "5/14/2020 12:03". Empty when the raw value is unset.
func (f *Fact) LastUpdateEastern() string {
	if f.LastUpdateTime == nil {
		return ""
	}
	return f.LastUpdateTime.In(eastern).Format("1/2/2006 15:04")
}
