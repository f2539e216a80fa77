package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/civistat/civistat/internal/fault"
	"github.com/civistat/civistat/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at         DATETIME NOT NULL,
	published_at       DATETIME,
	is_published       INTEGER NOT NULL DEFAULT 0,
	is_revision        INTEGER NOT NULL DEFAULT 0,
	entry_type         TEXT NOT NULL,
	note               TEXT NOT NULL DEFAULT '',
	author             TEXT NOT NULL DEFAULT '',
	link               TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	changed_fields     TEXT,
	changed_date_range TEXT NOT NULL DEFAULT '',
	num_rows_edited    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entities (
	code                 TEXT PRIMARY KEY,
	name                 TEXT NOT NULL DEFAULT '',
	fips                 TEXT NOT NULL DEFAULT '',
	twitter              TEXT NOT NULL DEFAULT '',
	notes                TEXT NOT NULL DEFAULT '',
	total_results_source TEXT NOT NULL DEFAULT 'posNeg'
);

CREATE TABLE IF NOT EXISTS facts (
	entity                   TEXT NOT NULL REFERENCES entities(code),
	batch_id                 INTEGER NOT NULL REFERENCES batches(id),
	date                     TEXT NOT NULL,
	positive                 INTEGER,
	negative                 INTEGER,
	pending                  INTEGER,
	hospitalized_currently   INTEGER,
	hospitalized_cumulative  INTEGER,
	in_icu_currently         INTEGER,
	in_icu_cumulative        INTEGER,
	on_ventilator_currently  INTEGER,
	on_ventilator_cumulative INTEGER,
	recovered                INTEGER,
	death                    INTEGER,
	probable_cases           INTEGER,
	positive_cases_viral     INTEGER,
	total_tests_viral        INTEGER,
	data_quality_grade       TEXT,
	public_notes             TEXT,
	last_update_time         DATETIME,
	date_checked             DATETIME,
	PRIMARY KEY (entity, batch_id, date)
);

CREATE INDEX IF NOT EXISTS idx_facts_batch_id ON facts(batch_id);
CREATE INDEX IF NOT EXISTS idx_facts_entity_date ON facts(entity, date);
CREATE INDEX IF NOT EXISTS idx_batches_is_published ON batches(is_published);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CommitBatch(ctx context.Context, batch *model.Batch, facts []model.Fact) error {
	changedFields, err := marshalChangedFields(batch.ChangedFields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal changed fields")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Store(err, "sqlite: begin commit batch")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO batches (created_at, published_at, is_published, is_revision, entry_type, note, author, link, category, changed_fields, changed_date_range, num_rows_edited)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.CreatedAt, batch.PublishedAt, batch.IsPublished, batch.IsRevision,
		string(batch.EntryType), batch.Note, batch.User, batch.Link, batch.Category,
		changedFields, batch.ChangedDateRange, batch.RowsEdited,
	)
	if err != nil {
		return fault.Store(err, "sqlite: insert batch")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fault.Store(err, "sqlite: batch id")
	}
	batch.ID = id

	insertSQL := fmt.Sprintf(
		`INSERT INTO facts (%s) VALUES (%s)`,
		strings.Join(factColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(factColumns)), ", "),
	)
	for i := range facts {
		facts[i].BatchID = batch.ID
		if _, err := tx.ExecContext(ctx, insertSQL, factValues(&facts[i])...); err != nil {
			return fault.Store(err, fmt.Sprintf("sqlite: insert fact %s %s", facts[i].Entity, facts[i].Date))
		}
	}

	if err := tx.Commit(); err != nil {
		return fault.Store(err, "sqlite: commit batch")
	}
	return nil
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id int64) (*model.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("batch %d not found", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get batch %d", id)
	}
	return b, nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) PublishBatch(ctx context.Context, id int64, at time.Time) (*model.Batch, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET is_published = 1, published_at = ? WHERE id = ? AND is_published = 0`,
		at, id,
	)
	if err != nil {
		return nil, fault.Store(err, fmt.Sprintf("sqlite: publish batch %d", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fault.Store(err, "sqlite: publish rows affected")
	}
	if n == 0 {
		b, err := s.GetBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.IsPublished {
			return nil, fault.Conflictf("batch %d already published", id)
		}
		return nil, eris.Errorf("sqlite: publish batch %d: no rows affected", id)
	}
	return s.GetBatch(ctx, id)
}

func (s *SQLiteStore) LatestFacts(ctx context.Context, filter FactFilter) ([]model.Fact, error) {
	where := []string{`b.entry_type IN ('daily', 'edit')`}
	args := []any{}

	if !filter.Preview {
		where = append(where, `b.is_published = 1`)
	}
	if len(filter.Entities) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Entities)), ", ")
		where = append(where, fmt.Sprintf(`f.entity IN (%s)`, marks))
		for _, e := range filter.Entities {
			args = append(args, e)
		}
	}
	if filter.Date != "" {
		where = append(where, `f.date = ?`)
		args = append(args, string(filter.Date))
	}

	outer := ``
	if filter.Limit > 0 {
		outer = ` WHERE latest.rn <= ?`
		args = append(args, filter.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM facts d
		JOIN (
			SELECT f.entity, f.date, MAX(f.batch_id) AS max_batch_id,
			       ROW_NUMBER() OVER (PARTITION BY f.entity ORDER BY f.date DESC) AS rn
			FROM facts f
			JOIN batches b ON b.id = f.batch_id
			WHERE %s
			GROUP BY f.entity, f.date
		) latest ON d.entity = latest.entity AND d.date = latest.date AND d.batch_id = latest.max_batch_id%s
		ORDER BY d.date DESC, d.entity ASC`,
		prefixColumns("d", factColumns), strings.Join(where, " AND "), outer,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest facts")
	}
	defer rows.Close()
	return collectFactsSQL(rows)
}

func (s *SQLiteStore) FactHistory(ctx context.Context, entity string, date model.Date) ([]model.Fact, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM facts d
		JOIN batches b ON b.id = d.batch_id
		WHERE b.is_published = 1 AND d.entity = ? AND d.date = ?
		ORDER BY d.batch_id DESC`,
		prefixColumns("d", factColumns),
	)
	rows, err := s.db.QueryContext(ctx, query, entity, string(date))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: fact history %s %s", entity, date)
	}
	defer rows.Close()
	return collectFactsSQL(rows)
}

func (s *SQLiteStore) GetEntity(ctx context.Context, code string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, name, fips, twitter, notes, total_results_source FROM entities WHERE code = ?`, code)
	e, err := scanEntity(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("entity %s not found", code)
		}
		return nil, eris.Wrapf(err, "sqlite: get entity %s", code)
	}
	return e, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, fips, twitter, notes, total_results_source FROM entities ORDER BY code ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) UpsertEntities(ctx context.Context, entities []model.Entity) error {
	for _, e := range entities {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO entities (code, name, fips, twitter, notes, total_results_source)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (code) DO UPDATE SET
			   name = excluded.name, fips = excluded.fips, twitter = excluded.twitter,
			   notes = excluded.notes, total_results_source = excluded.total_results_source`,
			e.Code, e.Name, e.FIPS, e.Twitter, e.Notes, e.TotalResultsSource.String(),
		)
		if err != nil {
			return fault.Store(err, fmt.Sprintf("sqlite: upsert entity %s", e.Code))
		}
	}
	return nil
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, entity model.Entity) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET name = ?, fips = ?, twitter = ?, notes = ?, total_results_source = ? WHERE code = ?`,
		entity.Name, entity.FIPS, entity.Twitter, entity.Notes, entity.TotalResultsSource.String(), entity.Code,
	)
	if err != nil {
		return fault.Store(err, fmt.Sprintf("sqlite: update entity %s", entity.Code))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Store(err, "sqlite: update rows affected")
	}
	if n == 0 {
		return fault.NotFoundf("entity %s not found", entity.Code)
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM facts`,
		`DELETE FROM batches`,
		`DELETE FROM entities`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fault.Store(err, "sqlite: reset")
		}
	}
	// Restart batch ids. sqlite_sequence only exists once an AUTOINCREMENT
	// insert has happened.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'batches'`); err != nil &&
		!strings.Contains(err.Error(), "no such table") {
		return fault.Store(err, "sqlite: reset sequence")
	}
	return nil
}

// collectFactsSQL drains a database/sql result set of fact rows.
func collectFactsSQL(rows *sql.Rows) ([]model.Fact, error) {
	var facts []model.Fact
	for rows.Next() {
		var f model.Fact
		var date string
		var grade, notes *string
		if err := rows.Scan(factDests(&f, &date, &grade, &notes)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		f.Date = model.Date(date)
		if grade != nil {
			f.DataQualityGrade = *grade
		}
		if notes != nil {
			f.PublicNotes = *notes
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: facts iterate")
}
