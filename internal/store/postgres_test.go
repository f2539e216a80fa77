package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civistat/civistat/internal/fault"
	"github.com/civistat/civistat/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func batchRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "created_at", "published_at", "is_published", "is_revision",
		"entry_type", "note", "author", "link", "category",
		"changed_fields", "changed_date_range", "num_rows_edited",
	})
}

func TestPostgresStore_CommitBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO batches`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO facts`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	batch := &model.Batch{EntryType: model.EntryTypeDaily, Note: "daily push", User: "tester"}
	facts := []model.Fact{{Entity: "NY", Date: "2020-05-24", Positive: i64(20)}}
	err := s.CommitBatch(context.Background(), batch, facts)
	require.NoError(t, err)
	assert.Equal(t, int64(7), batch.ID)
	assert.Equal(t, int64(7), facts[0].BatchID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitBatch_RollsBackOnFactError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO batches`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectExec(`INSERT INTO facts`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	batch := &model.Batch{EntryType: model.EntryTypeDaily}
	err := s.CommitBatch(context.Background(), batch, []model.Fact{{Entity: "NY", Date: "2020-05-24"}})
	require.Error(t, err)
	assert.Equal(t, fault.KindStore, fault.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM batches WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBatch(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatch_DecodesChangedFields(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	changed := `["inIcuCurrently","positive"]`
	mock.ExpectQuery(`FROM batches WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(batchRows().AddRow(
			int64(3), time.Now().UTC(), nil, true, true,
			"edit", "corrected icu", "editor", "", "",
			&changed, "5/24/20", 1,
		))

	got, err := s.GetBatch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"inIcuCurrently", "positive"}, got.ChangedFields)
	assert.Equal(t, model.EntryTypeEdit, got.EntryType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PublishBatch_AlreadyPublished(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE batches SET is_published = TRUE`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`FROM batches WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(batchRows().AddRow(
			int64(5), time.Now().UTC(), nil, true, false,
			"daily", "", "", "", "",
			nil, "", 0,
		))

	_, err := s.PublishBatch(context.Background(), 5, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, fault.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateEntity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE entities SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateEntity(context.Background(), model.Entity{Code: "ZZ"})
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestFacts_AppliesFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`b\.is_published`).
		WithArgs([]string{"NY"}, 5).
		WillReturnRows(pgxmock.NewRows(factColumns))

	_, err := s.LatestFacts(context.Background(), FactFilter{Entities: []string{"NY"}, Limit: 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
