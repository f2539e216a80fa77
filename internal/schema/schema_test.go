package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByIDAndKnown(t *testing.T) {
	f := ByID("positive")
	require.NotNil(t, f)
	assert.Equal(t, KindNumeric, f.Kind)
	assert.True(t, f.Aggregable)

	assert.Nil(t, ByID("nope"))
	assert.False(t, Known("nope"))

	// Natural keys are known but not declared fields.
	assert.True(t, Known(KeyEntity))
	assert.True(t, Known(KeyDate))
	assert.Nil(t, ByID(KeyEntity))
}

func TestFieldPartitions(t *testing.T) {
	numeric := NumericIDs()
	assert.Len(t, numeric, 14)
	assert.Equal(t, numeric, AggregableIDs())

	for _, id := range numeric {
		assert.Equal(t, KindNumeric, ByID(id).Kind)
	}

	assert.Equal(t, KindText, ByID("dataQualityGrade").Kind)
	assert.Equal(t, KindText, ByID("publicNotes").Kind)
	assert.Equal(t, KindTimestamp, ByID("lastUpdateTime").Kind)
	assert.Equal(t, KindTimestamp, ByID("dateChecked").Kind)
	assert.Len(t, All(), 18)
}
