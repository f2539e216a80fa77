package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/civistat/civistat/internal/schema"
)

// Numeric coercion failures, distinguishable with errors.Is.
var (
	ErrNonNumeric = errors.New("non-numeric value")
	ErrNegative   = errors.New("negative value")
)

// Row is a raw submitted data row, as decoded from a request body or input
// file. Key presence matters: for edits, a key that is absent (or null, or
// an empty string) is not part of the submission.
type Row map[string]any

// Entity returns the row's entity code, or "".
func (r Row) Entity() string {
	s, _ := r[schema.KeyEntity].(string)
	return s
}

// DateString returns the row's raw date value, or "".
func (r Row) DateString() string {
	s, _ := r[schema.KeyDate].(string)
	return s
}

// Stripped returns a copy of the row holding only keys with substantive
// values: nulls, empty strings and the natural keys are dropped. The result
// is exactly the set of fields the submitter intends to set.
func (r Row) Stripped() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if k == schema.KeyEntity || k == schema.KeyDate {
			continue
		}
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// ParseNumeric coerces a submitted value to a non-negative integer. It
// returns an error wrapping ErrNonNumeric or ErrNegative on failure.
func ParseNumeric(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %v", ErrNonNumeric, n)
		}
		return checkNonNegative(int64(n))
	case int:
		return checkNonNegative(int64(n))
	case int64:
		return checkNonNegative(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNonNumeric, n.String())
		}
		return checkNonNegative(i)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNonNumeric, n)
		}
		return checkNonNegative(i)
	}
	return 0, fmt.Errorf("%w: %v", ErrNonNumeric, v)
}

func checkNonNegative(i int64) (int64, error) {
	if i < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegative, i)
	}
	return i, nil
}

// parseTimestamp accepts RFC 3339 with or without sub-day precision.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("model: invalid timestamp %q", s)
}

// FactFromRow materializes a fact from a row's stripped field set. Keys the
// row does not carry stay at their zero (empty) value; callers are expected
// to have validated the row against the schema already, so unknown keys are
// skipped here rather than rejected.
func FactFromRow(row Row) (Fact, error) {
	date, err := ParseDate(row.DateString())
	if err != nil {
		return Fact{}, err
	}
	f := Fact{Entity: row.Entity(), Date: date}

	for k, v := range row.Stripped() {
		desc := schema.ByID(k)
		if desc == nil {
			continue
		}
		switch desc.Kind {
		case schema.KindNumeric:
			n, err := ParseNumeric(v)
			if err != nil {
				return Fact{}, eris.Wrapf(err, "model: field %s", k)
			}
			f.SetNumeric(k, &n)
		case schema.KindText:
			s, ok := v.(string)
			if !ok {
				return Fact{}, eris.Errorf("model: field %s: expected string, got %T", k, v)
			}
			f.SetText(k, s)
		case schema.KindTimestamp:
			s, ok := v.(string)
			if !ok {
				return Fact{}, eris.Errorf("model: field %s: expected timestamp string, got %T", k, v)
			}
			t, err := parseTimestamp(s)
			if err != nil {
				return Fact{}, eris.Wrapf(err, "model: field %s", k)
			}
			f.SetTimestamp(k, &t)
		}
	}
	return f, nil
}
