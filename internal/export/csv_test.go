package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/rollup"
)

func i64(v int64) *int64 { return &v }

func TestWriteDaily(t *testing.T) {
	updated := time.Date(2020, 5, 14, 16, 3, 0, 0, time.UTC)
	facts := []model.Fact{
		{
			Entity: "NY", Date: "2020-05-24",
			Positive: i64(16), Negative: i64(4),
			DataQualityGrade: "A",
			LastUpdateTime:   &updated,
		},
		{Entity: "WA", Date: "2020-05-24", Positive: i64(10)},
	}
	src, err := model.NamedFieldSource("totalTestsViral")
	require.NoError(t, err)
	entities := map[string]model.Entity{
		"NY": {Code: "NY", TotalResultsSource: src},
		"WA": {Code: "WA"},
	}
	facts[0].TotalTestsViral = i64(500)

	var buf bytes.Buffer
	require.NoError(t, WriteDaily(&buf, facts, entities))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	header := records[0]
	assert.Equal(t, "Date", header[0])
	assert.Equal(t, "Entity", header[1])
	assert.Equal(t, "Positive", header[2])
	assert.Equal(t, "Total Results", header[len(header)-2])
	assert.Equal(t, "Last Update ET", header[len(header)-1])

	ny := records[1]
	assert.Equal(t, "2020-05-24", ny[0])
	assert.Equal(t, "NY", ny[1])
	assert.Equal(t, "16", ny[2])
	// NY's total results come from its configured source field.
	assert.Equal(t, "500", ny[len(ny)-2])
	assert.Equal(t, "5/14/2020 12:03", ny[len(ny)-1])

	wa := records[2]
	assert.Equal(t, "10", wa[2])
	assert.Empty(t, wa[3]) // negative unset renders empty
	assert.Equal(t, "10", wa[len(wa)-2])
	assert.Empty(t, wa[len(wa)-1])
}

func TestWriteRollup(t *testing.T) {
	rows := []rollup.AggregateRow{
		{
			Date:         "2020-05-24",
			EntityCount:  2,
			Sums:         map[string]int64{"positive": 30, "negative": 15},
			TotalResults: 45,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRollup(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header := records[0]
	assert.Equal(t, []string{"Date", "Entities", "Positive", "Negative"}, header[:4])
	assert.Equal(t, "Total Results", header[len(header)-1])

	row := records[1]
	assert.Equal(t, "2020-05-24", row[0])
	assert.Equal(t, "2", row[1])
	assert.Equal(t, "30", row[2])
	assert.Equal(t, "15", row[3])
	assert.Equal(t, "0", row[4]) // pending: no entity reported
	assert.Equal(t, "45", row[len(row)-1])
}
