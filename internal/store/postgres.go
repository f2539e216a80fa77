package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/civistat/civistat/internal/db"
	"github.com/civistat/civistat/internal/fault"
	"github.com/civistat/civistat/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// copyThreshold is the fact count above which CommitBatch switches from
// per-row inserts to the COPY protocol. Backfill snapshots clear it easily.
const copyThreshold = 500

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id                 BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at       TIMESTAMPTZ,
	is_published       BOOLEAN NOT NULL DEFAULT FALSE,
	is_revision        BOOLEAN NOT NULL DEFAULT FALSE,
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
	batch_id                 BIGINT NOT NULL REFERENCES batches(id),
	date                     TEXT NOT NULL,
	positive                 BIGINT,
	negative                 BIGINT,
	pending                  BIGINT,
	hospitalized_currently   BIGINT,
	hospitalized_cumulative  BIGINT,
	in_icu_currently         BIGINT,
	in_icu_cumulative        BIGINT,
	on_ventilator_currently  BIGINT,
	on_ventilator_cumulative BIGINT,
	recovered                BIGINT,
	death                    BIGINT,
	probable_cases           BIGINT,
	positive_cases_viral     BIGINT,
	total_tests_viral        BIGINT,
	data_quality_grade       TEXT,
	public_notes             TEXT,
	last_update_time         TIMESTAMPTZ,
	date_checked             TIMESTAMPTZ,
	PRIMARY KEY (entity, batch_id, date)
);

CREATE INDEX IF NOT EXISTS idx_facts_batch_id ON facts(batch_id);
CREATE INDEX IF NOT EXISTS idx_facts_entity_date ON facts(entity, date);
CREATE INDEX IF NOT EXISTS idx_batches_is_published ON batches(is_published);
`

const batchColumns = `id, created_at, published_at, is_published, is_revision, entry_type, note, author, link, category, changed_fields, changed_date_range, num_rows_edited`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CommitBatch(ctx context.Context, batch *model.Batch, facts []model.Fact) error {
	changedFields, err := marshalChangedFields(batch.ChangedFields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal changed fields")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fault.Store(err, "postgres: begin commit batch")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx,
		`INSERT INTO batches (created_at, published_at, is_published, is_revision, entry_type, note, author, link, category, changed_fields, changed_date_range, num_rows_edited)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		batch.CreatedAt, batch.PublishedAt, batch.IsPublished, batch.IsRevision,
		string(batch.EntryType), batch.Note, batch.User, batch.Link, batch.Category,
		changedFields, batch.ChangedDateRange, batch.RowsEdited,
	).Scan(&batch.ID)
	if err != nil {
		return fault.Store(err, "postgres: insert batch")
	}

	for i := range facts {
		facts[i].BatchID = batch.ID
	}

	if len(facts) >= copyThreshold {
		rows := make([][]any, len(facts))
		for i := range facts {
			rows[i] = factValues(&facts[i])
		}
		if _, err := db.CopyFrom(ctx, tx, "facts", factColumns, rows); err != nil {
			return fault.Store(err, "postgres: copy facts")
		}
	} else {
		insertSQL := fmt.Sprintf(
			`INSERT INTO facts (%s) VALUES (%s)`,
			strings.Join(factColumns, ", "), placeholders(len(factColumns)),
		)
		for i := range facts {
			if _, err := tx.Exec(ctx, insertSQL, factValues(&facts[i])...); err != nil {
				return fault.Store(err, fmt.Sprintf("postgres: insert fact %s %s", facts[i].Entity, facts[i].Date))
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fault.Store(err, "postgres: commit batch")
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id int64) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	b, err := scanBatch(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("batch %d not found", id)
		}
		return nil, eris.Wrapf(err, "postgres: get batch %d", id)
	}
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) PublishBatch(ctx context.Context, id int64, at time.Time) (*model.Batch, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches SET is_published = TRUE, published_at = $1 WHERE id = $2 AND NOT is_published`,
		at, id,
	)
	if err != nil {
		return nil, fault.Store(err, fmt.Sprintf("postgres: publish batch %d", id))
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing batch from a double publish.
		b, err := s.GetBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.IsPublished {
			return nil, fault.Conflictf("batch %d already published", id)
		}
		return nil, eris.Errorf("postgres: publish batch %d: no rows affected", id)
	}
	return s.GetBatch(ctx, id)
}

func (s *PostgresStore) LatestFacts(ctx context.Context, filter FactFilter) ([]model.Fact, error) {
	where := []string{`b.entry_type IN ('daily', 'edit')`}
	args := []any{}
	argIdx := 1

	if !filter.Preview {
		where = append(where, `b.is_published`)
	}
	if len(filter.Entities) > 0 {
		where = append(where, fmt.Sprintf(`f.entity = ANY($%d)`, argIdx))
		args = append(args, filter.Entities)
		argIdx++
	}
	if filter.Date != "" {
		where = append(where, fmt.Sprintf(`f.date = $%d`, argIdx))
		args = append(args, string(filter.Date))
		argIdx++
	}

	outer := ``
	if filter.Limit > 0 {
		outer = fmt.Sprintf(` WHERE latest.rn <= $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}

	// Group-by-max resolves last-writer-wins per (entity, date); the
	// row_number window bounds the distinct dates kept per entity.
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest facts")
	}
	defer rows.Close()
	return collectFactsPgx(rows)
}

func (s *PostgresStore) FactHistory(ctx context.Context, entity string, date model.Date) ([]model.Fact, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM facts d
		JOIN batches b ON b.id = d.batch_id
		WHERE b.is_published AND d.entity = $1 AND d.date = $2
		ORDER BY d.batch_id DESC`,
		prefixColumns("d", factColumns),
	)
	rows, err := s.pool.Query(ctx, query, entity, string(date))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: fact history %s %s", entity, date)
	}
	defer rows.Close()
	return collectFactsPgx(rows)
}

func (s *PostgresStore) GetEntity(ctx context.Context, code string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT code, name, fips, twitter, notes, total_results_source FROM entities WHERE code = $1`, code)
	e, err := scanEntity(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("entity %s not found", code)
		}
		return nil, eris.Wrapf(err, "postgres: get entity %s", code)
	}
	return e, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, name, fips, twitter, notes, total_results_source FROM entities ORDER BY code ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) UpsertEntities(ctx context.Context, entities []model.Entity) error {
	for _, e := range entities {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO entities (code, name, fips, twitter, notes, total_results_source)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (code) DO UPDATE SET
			   name = $2, fips = $3, twitter = $4, notes = $5, total_results_source = $6`,
			e.Code, e.Name, e.FIPS, e.Twitter, e.Notes, e.TotalResultsSource.String(),
		)
		if err != nil {
			return fault.Store(err, fmt.Sprintf("postgres: upsert entity %s", e.Code))
		}
	}
	return nil
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, entity model.Entity) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET name = $1, fips = $2, twitter = $3, notes = $4, total_results_source = $5 WHERE code = $6`,
		entity.Name, entity.FIPS, entity.Twitter, entity.Notes, entity.TotalResultsSource.String(), entity.Code,
	)
	if err != nil {
		return fault.Store(err, fmt.Sprintf("postgres: update entity %s", entity.Code))
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("entity %s not found", entity.Code)
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE facts, batches, entities RESTART IDENTITY`)
	return fault.Store(err, "postgres: reset")
}

// collectFactsPgx drains a pgx result set of fact rows.
func collectFactsPgx(rows pgx.Rows) ([]model.Fact, error) {
	var facts []model.Fact
	for rows.Next() {
		var f model.Fact
		var date string
		var grade, notes *string
		if err := rows.Scan(factDests(&f, &date, &grade, &notes)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact")
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
	return facts, eris.Wrap(rows.Err(), "postgres: facts iterate")
}

// scanBatch reads one batch row in batchColumns order. The scan signature
// is shared by pgx.Row and pgx.Rows.
func scanBatch(scan func(...any) error) (*model.Batch, error) {
	var b model.Batch
	var entryType string
	var changedFields *string
	err := scan(
		&b.ID, &b.CreatedAt, &b.PublishedAt, &b.IsPublished, &b.IsRevision,
		&entryType, &b.Note, &b.User, &b.Link, &b.Category,
		&changedFields, &b.ChangedDateRange, &b.RowsEdited,
	)
	if err != nil {
		return nil, err
	}
	b.EntryType = model.EntryType(entryType)
	if changedFields != nil && *changedFields != "" {
		if err := json.Unmarshal([]byte(*changedFields), &b.ChangedFields); err != nil {
			return nil, eris.Wrap(err, "unmarshal changed fields")
		}
	}
	return &b, nil
}

func scanEntity(scan func(...any) error) (*model.Entity, error) {
	var e model.Entity
	var source string
	if err := scan(&e.Code, &e.Name, &e.FIPS, &e.Twitter, &e.Notes, &source); err != nil {
		return nil, err
	}
	src, err := model.ParseTotalResultsSource(source)
	if err != nil {
		return nil, eris.Wrapf(err, "entity %s", e.Code)
	}
	e.TotalResultsSource = src
	return &e, nil
}

func marshalChangedFields(fields []string) (*string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	buf, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	s := string(buf)
	return &s, nil
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func prefixColumns(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}
