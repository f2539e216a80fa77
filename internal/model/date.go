package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Date is a calendar day in ISO form (YYYY-MM-DD). ISO ordering is
// lexicographic, so Date values compare correctly as strings.
type Date string

// ParseDate normalizes a submitted date string. Both ISO (2020-05-24) and
// compact (20200524) forms are accepted; compact is what the spreadsheet
// side has historically sent.
func ParseDate(s string) (Date, error) {
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date(t.Format("2006-01-02")), nil
		}
	}
	return "", eris.Errorf("model: invalid date %q", s)
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	t, _ := time.Parse("2006-01-02", string(d))
	return t
}

// Short renders the date as M/D/YY for edit summaries.
func (d Date) Short() string {
	return d.Time().Format("1/2/06")
}

func (d Date) String() string { return string(d) }
