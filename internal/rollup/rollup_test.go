package rollup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/resolver"
	"github.com/civistat/civistat/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seed(t *testing.T, st *store.SQLiteStore, published bool, facts ...model.Fact) {
	t.Helper()
	now := time.Now().UTC()
	batch := &model.Batch{
		CreatedAt:   now,
		IsPublished: published,
		EntryType:   model.EntryTypeDaily,
		User:        "seeder",
	}
	if published {
		batch.PublishedAt = &now
	}
	require.NoError(t, st.CommitBatch(context.Background(), batch, facts))
}

func i64(v int64) *int64 { return &v }

func TestRollup_SumsAcrossEntities(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{{Code: "NY"}, {Code: "WA"}}))

	seed(t, st, true,
		model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(20), Negative: i64(5)},
		model.Fact{Entity: "WA", Date: "2020-05-24", Positive: i64(10), Negative: i64(10)},
	)

	rows, err := New(resolver.New(st)).Rollup(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, model.Date("2020-05-24"), row.Date)
	assert.Equal(t, 2, row.EntityCount)
	assert.Equal(t, int64(30), row.Sums["positive"])
	assert.Equal(t, int64(15), row.Sums["negative"])
	// Both entities default to pos+neg: (20+5) + (10+10).
	assert.Equal(t, int64(45), row.TotalResults)
}

func TestRollup_PerEntitySourceOverride(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src, err := model.NamedFieldSource("totalTestsViral")
	require.NoError(t, err)
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{
		{Code: "NY", TotalResultsSource: src},
		{Code: "WA"},
	}))

	seed(t, st, true,
		model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(20), Negative: i64(5), TotalTestsViral: i64(1000)},
		model.Fact{Entity: "WA", Date: "2020-05-24", Positive: i64(10), Negative: i64(10)},
	)

	rows, err := New(resolver.New(st)).Rollup(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// NY contributes its totalTestsViral, never positive+negative;
	// WA still contributes pos+neg.
	assert.Equal(t, int64(1020), rows[0].TotalResults)
	// The shared positive column still sums normally.
	assert.Equal(t, int64(30), rows[0].Sums["positive"])
}

func TestRollup_UsesLatestVisibleFacts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{{Code: "NY"}}))

	seed(t, st, true, model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(20)})
	seed(t, st, true, model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(25)})
	seed(t, st, false, model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(99)})

	rows, err := New(resolver.New(st)).Rollup(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(25), rows[0].Sums["positive"])

	preview, err := New(resolver.New(st)).Rollup(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, int64(99), preview[0].Sums["positive"])
}

func TestRollup_OrderedByDateDescending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{{Code: "NY"}, {Code: "WA"}}))

	seed(t, st, true,
		model.Fact{Entity: "NY", Date: "2020-05-23", Positive: i64(1)},
		model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(2)},
		model.Fact{Entity: "WA", Date: "2020-05-24", Positive: i64(3)},
	)

	rows, err := New(resolver.New(st)).Rollup(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.Date("2020-05-24"), rows[0].Date)
	assert.Equal(t, 2, rows[0].EntityCount)
	assert.Equal(t, model.Date("2020-05-23"), rows[1].Date)
	assert.Equal(t, 1, rows[1].EntityCount)
}

func TestRollup_MissingValuesContributeZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{{Code: "NY"}, {Code: "WA"}}))

	seed(t, st, true,
		model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(20), Death: i64(3)},
		model.Fact{Entity: "WA", Date: "2020-05-24", Positive: i64(10)},
	)

	rows, err := New(resolver.New(st)).Rollup(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Sums["death"])
	assert.Equal(t, int64(0), rows[0].Sums["pending"])
}
