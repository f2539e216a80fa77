package model

import (
	"github.com/rotisserie/eris"

	"github.com/civistat/civistat/internal/schema"
)

// posNegKeyword is the persisted form of the pos+neg total results source.
const posNegKeyword = "posNeg"

// TotalResultsSource dictates how an entity's "total results" derived value
// is computed: either the sum of its positive and negative counts, or a
// single named numeric field. The set of valid states is closed at parse
// time; an invalid source string never reaches a stored entity.
type TotalResultsSource struct {
	field string // empty means pos+neg sum
}

// PosNegSum is the default source: positive + negative.
func PosNegSum() TotalResultsSource { return TotalResultsSource{} }

// NamedFieldSource builds a source reading a single numeric field.
func NamedFieldSource(fieldID string) (TotalResultsSource, error) {
	f := schema.ByID(fieldID)
	if f == nil || f.Kind != schema.KindNumeric {
		return TotalResultsSource{}, eris.Errorf("model: total results source %q is not a numeric field", fieldID)
	}
	return TotalResultsSource{field: fieldID}, nil
}

// ParseTotalResultsSource parses the persisted form: the posNeg keyword, a
// numeric field id, or empty (defaulting to posNeg).
func ParseTotalResultsSource(s string) (TotalResultsSource, error) {
	if s == "" || s == posNegKeyword {
		return PosNegSum(), nil
	}
	return NamedFieldSource(s)
}

// IsPosNegSum reports whether the source is the positive+negative sum.
func (s TotalResultsSource) IsPosNegSum() bool { return s.field == "" }

// FieldID returns the named field id, or "" for the pos+neg sum.
func (s TotalResultsSource) FieldID() string { return s.field }

func (s TotalResultsSource) String() string {
	if s.field == "" {
		return posNegKeyword
	}
	return s.field
}

// Entity is a tracked jurisdiction. Code is the stable identifier facts
// reference; the rest is display metadata plus the aggregation-source
// configuration consulted on every derived total-results read.
type Entity struct {
	Code               string             `json:"code" yaml:"code"`
	Name               string             `json:"name,omitempty" yaml:"name,omitempty"`
	FIPS               string             `json:"fips,omitempty" yaml:"fips,omitempty"`
	Twitter            string             `json:"twitter,omitempty" yaml:"twitter,omitempty"`
	Notes              string             `json:"notes,omitempty" yaml:"notes,omitempty"`
	TotalResultsSource TotalResultsSource `json:"-" yaml:"-"`
}

// entityYAML mirrors Entity for seed-file decoding, with the source in its
// persisted string form.
type entityYAML struct {
	Code    string `yaml:"code"`
	Name    string `yaml:"name"`
	FIPS    string `yaml:"fips"`
	Twitter string `yaml:"twitter"`
	Notes   string `yaml:"notes"`
	Source  string `yaml:"totalResultsSource"`
}

// UnmarshalYAML decodes an entity from a seed file, validating the
// aggregation source.
func (e *Entity) UnmarshalYAML(unmarshal func(any) error) error {
	var raw entityYAML
	if err := unmarshal(&raw); err != nil {
		return err
	}
	src, err := ParseTotalResultsSource(raw.Source)
	if err != nil {
		return eris.Wrapf(err, "model: entity %s", raw.Code)
	}
	*e = Entity{
		Code:               raw.Code,
		Name:               raw.Name,
		FIPS:               raw.FIPS,
		Twitter:            raw.Twitter,
		Notes:              raw.Notes,
		TotalResultsSource: src,
	}
	return nil
}
