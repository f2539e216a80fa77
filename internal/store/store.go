package store

import (
	"context"
	"time"

	"github.com/civistat/civistat/internal/model"
)

// FactFilter restricts latest-state resolution.
type FactFilter struct {
	// Entities restricts to the given entity codes; empty means all.
	Entities []string
	// Date restricts to a single date; empty means all dates.
	Date model.Date
	// Preview lifts the published-only constraint, exposing the newest
	// batches regardless of publish flag.
	Preview bool
	// Limit keeps only the Limit most-recent distinct dates per entity.
	// Zero means unbounded.
	Limit int
}

// Store is the persistence contract for the versioned fact ledger. Beyond
// plain lookups it provides exactly three write/query shapes: atomic
// batch+fact commit with a generated batch id, the filtered group-by-max
// latest-state query, and entity upserts.
type Store interface {
	// Batches. CommitBatch assigns the batch id and persists the batch
	// and all its facts atomically; on error nothing is persisted.
	CommitBatch(ctx context.Context, batch *model.Batch, facts []model.Fact) error
	GetBatch(ctx context.Context, id int64) (*model.Batch, error)
	ListBatches(ctx context.Context) ([]model.Batch, error)
	// PublishBatch flips the publish flag and stamps the publish time. It
	// never rewrites facts, and rejects a double publish.
	PublishBatch(ctx context.Context, id int64, at time.Time) (*model.Batch, error)

	// Facts. LatestFacts returns, per (entity, date), the fact attached
	// to the maximum batch id among batches satisfying the filter,
	// ordered by date descending then entity ascending.
	LatestFacts(ctx context.Context, filter FactFilter) ([]model.Fact, error)
	// FactHistory returns all published facts for (entity, date), newest
	// batch first.
	FactHistory(ctx context.Context, entity string, date model.Date) ([]model.Fact, error)

	// Entities.
	GetEntity(ctx context.Context, code string) (*model.Entity, error)
	ListEntities(ctx context.Context) ([]model.Entity, error)
	UpsertEntities(ctx context.Context, entities []model.Entity) error
	// UpdateEntity updates metadata for an existing entity and fails with
	// a not-found error for an unknown code.
	UpdateEntity(ctx context.Context, entity model.Entity) error

	// Reset wipes all facts, batches and entities. Backfill only.
	Reset(ctx context.Context) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// factColumns is the canonical column order for the facts table, shared by
// both drivers and by COPY loads.
var factColumns = []string{
	"entity", "batch_id", "date",
	"positive", "negative", "pending",
	"hospitalized_currently", "hospitalized_cumulative",
	"in_icu_currently", "in_icu_cumulative",
	"on_ventilator_currently", "on_ventilator_cumulative",
	"recovered", "death", "probable_cases", "positive_cases_viral",
	"total_tests_viral",
	"data_quality_grade", "public_notes",
	"last_update_time", "date_checked",
}

// factValues lists a fact's values in factColumns order.
func factValues(f *model.Fact) []any {
	return []any{
		f.Entity, f.BatchID, string(f.Date),
		f.Positive, f.Negative, f.Pending,
		f.HospitalizedCurrently, f.HospitalizedCumulative,
		f.InICUCurrently, f.InICUCumulative,
		f.OnVentilatorCurrently, f.OnVentilatorCumulative,
		f.Recovered, f.Death, f.ProbableCases, f.PositiveCasesViral,
		f.TotalTestsViral,
		nullIfEmpty(f.DataQualityGrade), nullIfEmpty(f.PublicNotes),
		f.LastUpdateTime, f.DateChecked,
	}
}

// factDests lists scan destinations in factColumns order. Nullable columns
// scan through pointer-to-pointer so NULL comes back as nil.
func factDests(f *model.Fact, date *string, grade, notes **string) []any {
	return []any{
		&f.Entity, &f.BatchID, date,
		&f.Positive, &f.Negative, &f.Pending,
		&f.HospitalizedCurrently, &f.HospitalizedCumulative,
		&f.InICUCurrently, &f.InICUCumulative,
		&f.OnVentilatorCurrently, &f.OnVentilatorCumulative,
		&f.Recovered, &f.Death, &f.ProbableCases, &f.PositiveCasesViral,
		&f.TotalTestsViral,
		grade, notes,
		&f.LastUpdateTime, &f.DateChecked,
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
