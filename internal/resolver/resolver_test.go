package resolver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civistat/civistat/internal/model"
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

func seed(t *testing.T, st *store.SQLiteStore, published bool, facts ...model.Fact) *model.Batch {
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
	return batch
}

func i64(v int64) *int64 { return &v }

func TestLatest_MonotonicVisibilityOnPublish(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{{Code: "NY"}}))
	res := New(st)

	seed(t, st, true, model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(10)})
	unpublished := seed(t, st, false, model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(12)})

	previewBefore, err := res.Latest(ctx, store.FactFilter{Preview: true})
	require.NoError(t, err)
	require.Len(t, previewBefore, 1)
	assert.Equal(t, int64(12), *previewBefore[0].Positive)

	publishedBefore, err := res.Latest(ctx, store.FactFilter{})
	require.NoError(t, err)
	require.Len(t, publishedBefore, 1)
	assert.Equal(t, int64(10), *publishedBefore[0].Positive)

	_, err = st.PublishBatch(ctx, unpublished.ID, time.Now().UTC())
	require.NoError(t, err)

	// Publishing changed nothing in the preview view and strictly added
	// the batch to the published view.
	previewAfter, err := res.Latest(ctx, store.FactFilter{Preview: true})
	require.NoError(t, err)
	assert.Equal(t, previewBefore, previewAfter)

	publishedAfter, err := res.Latest(ctx, store.FactFilter{})
	require.NoError(t, err)
	require.Len(t, publishedAfter, 1)
	assert.Equal(t, int64(12), *publishedAfter[0].Positive)
}

func TestLatestByDate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{{Code: "NY"}, {Code: "WA"}}))
	res := New(st)

	seed(t, st, true,
		model.Fact{Entity: "NY", Date: "2020-05-24", Positive: i64(1)},
		model.Fact{Entity: "NY", Date: "2020-05-25", Positive: i64(2)},
		model.Fact{Entity: "WA", Date: "2020-05-24", Positive: i64(3)},
	)

	byDate, err := res.LatestByDate(ctx, "NY", false)
	require.NoError(t, err)
	require.Len(t, byDate, 2)
	assert.Equal(t, int64(1), *byDate["2020-05-24"].Positive)
	assert.Equal(t, int64(2), *byDate["2020-05-25"].Positive)
}

func TestEntityConfig(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src, err := model.NamedFieldSource("totalTestsViral")
	require.NoError(t, err)
	require.NoError(t, st.UpsertEntities(ctx, []model.Entity{
		{Code: "NY", TotalResultsSource: src},
		{Code: "WA"},
	}))

	cfg, err := New(st).EntityConfig(ctx)
	require.NoError(t, err)
	require.Len(t, cfg, 2)
	assert.Equal(t, "totalTestsViral", cfg["NY"].TotalResultsSource.String())
	assert.True(t, cfg["WA"].TotalResultsSource.IsPosNegSum())
}
