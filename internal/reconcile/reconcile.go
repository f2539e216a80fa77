// Package reconcile merges partial edits against the latest visible state
// and materializes the minimal set of new facts under a new batch.
package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/fault"
	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/resolver"
	"github.com/civistat/civistat/internal/schema"
	"github.com/civistat/civistat/internal/store"
	"github.com/civistat/civistat/internal/validate"
)

// Notifier receives the finished batch summary after commit. Failures are
// the notifier's problem; the reconciler never hears about them.
type Notifier interface {
	BatchCommitted(ctx context.Context, batch *model.Batch, diff *model.EditDiff)
}

// Result is a committed edit: the batch as persisted (id assigned, summary
// filled in) and the diff that produced it.
type Result struct {
	Batch *model.Batch
	Diff  model.EditDiff
}

// Reconciler evaluates edit submissions row by row against resolver output.
// All rows are evaluated before anything is written, so a failed edit leaves
// zero partial state.
type Reconciler struct {
	store    store.Store
	resolver *resolver.Resolver
	notifier Notifier
}

func New(s store.Store, r *resolver.Resolver, n Notifier) *Reconciler {
	return &Reconciler{store: s, resolver: r, notifier: n}
}

// EditEntity reconciles an edit scoped to a single target entity. Every row
// must name bc.TargetEntity; anything else is rejected before any write.
func (r *Reconciler) EditEntity(ctx context.Context, bc model.BatchContext, rows []model.Row) (*Result, error) {
	return r.edit(ctx, bc, rows, true)
}

// Edit reconciles an edit that may span entities.
func (r *Reconciler) Edit(ctx context.Context, bc model.BatchContext, rows []model.Row) (*Result, error) {
	return r.edit(ctx, bc, rows, false)
}

func (r *Reconciler) edit(ctx context.Context, bc model.BatchContext, rows []model.Row, requireEntity bool) (*Result, error) {
	requestID := uuid.NewString()
	log := zap.L().With(zap.String("request_id", requestID), zap.String("entity", bc.TargetEntity))

	if err := validate.EditContext(bc, requireEntity); err != nil {
		return nil, err
	}
	if err := validate.Rows(rows); err != nil {
		return nil, err
	}
	if bc.TargetEntity != "" {
		for _, row := range rows {
			if row.Entity() != bc.TargetEntity {
				return nil, fault.Validationf("entity mismatch: row for %s in edit targeting %s",
					row.Entity(), bc.TargetEntity)
			}
		}
	}

	// Prior state per entity, from the preview view so consecutive
	// unpublished edits stack instead of silently reverting each other.
	prior := map[string]map[model.Date]model.Fact{}
	for _, row := range rows {
		entity := row.Entity()
		if _, ok := prior[entity]; ok {
			continue
		}
		if _, err := r.store.GetEntity(ctx, entity); err != nil {
			return nil, err
		}
		byDate, err := r.resolver.LatestByDate(ctx, entity, true)
		if err != nil {
			return nil, err
		}
		prior[entity] = byDate
	}

	var diff model.EditDiff
	var facts []model.Fact
	for _, row := range rows {
		// A row with nothing beyond its natural keys is a no-op, not
		// an error.
		if len(row.Stripped()) == 0 {
			continue
		}
		candidate, err := model.FactFromRow(row)
		if err != nil {
			return nil, fault.Validationf("row %s %s: %v", row.Entity(), row.DateString(), err)
		}

		before, exists := prior[candidate.Entity][candidate.Date]
		if !exists {
			diff.NewRows = append(diff.NewRows, candidate)
			facts = append(facts, candidate)
			continue
		}

		// The candidate was built from submitted fields alone, so a
		// field the submitter omitted is compared as empty against the
		// prior value. Omitting a previously set field clears it.
		var changed []model.ChangedValue
		for _, field := range schema.All() {
			if before.FieldEqual(&candidate, field.ID) {
				continue
			}
			changed = append(changed, model.ChangedValue{
				Field: field.ID,
				Old:   model.FieldString(&before, field.ID),
				New:   model.FieldString(&candidate, field.ID),
			})
		}
		if len(changed) == 0 {
			continue
		}
		diff.ChangedRows = append(diff.ChangedRows, model.ChangedRow{
			Date:    candidate.Date,
			Entity:  candidate.Entity,
			Changed: changed,
		})
		facts = append(facts, candidate)
	}

	if diff.Empty() {
		return nil, fault.Conflictf("no edits detected")
	}

	now := time.Now().UTC()
	batch := &model.Batch{
		CreatedAt:   now,
		IsPublished: true,
		PublishedAt: &now,
		IsRevision:  true,
		EntryType:   bc.EntryType,
		Note:        bc.Note,
		User:        bc.User,
		Link:        bc.Link,
		Category:    bc.Category,
	}
	summarize(batch, &diff)

	if err := r.store.CommitBatch(ctx, batch, facts); err != nil {
		return nil, err
	}
	log.Info("committed edit batch",
		zap.Int64("batch_id", batch.ID),
		zap.Int("rows_edited", batch.RowsEdited),
		zap.Strings("changed_fields", batch.ChangedFields),
		zap.String("date_range", batch.ChangedDateRange))

	if r.notifier != nil {
		r.notifier.BatchCommitted(ctx, batch, &diff)
	}
	return &Result{Batch: batch, Diff: diff}, nil
}

// summarize fills in the edit summary: the union of changed field names,
// the inclusive date range over materialized rows and the row count.
func summarize(batch *model.Batch, diff *model.EditDiff) {
	fieldSet := map[string]bool{}
	var dates []model.Date

	for _, row := range diff.ChangedRows {
		for _, cv := range row.Changed {
			fieldSet[cv.Field] = true
		}
		dates = append(dates, row.Date)
	}
	for i := range diff.NewRows {
		f := &diff.NewRows[i]
		for _, field := range schema.All() {
			if !f.FieldEqual(&model.Fact{}, field.ID) {
				fieldSet[field.ID] = true
			}
		}
		dates = append(dates, f.Date)
	}

	fields := make([]string, 0, len(fieldSet))
	for id := range fieldSet {
		fields = append(fields, id)
	}
	sort.Strings(fields)
	batch.ChangedFields = fields
	batch.ChangedDateRange = dateRange(dates)
	batch.RowsEdited = len(diff.ChangedRows) + len(diff.NewRows)
}

// dateRange renders an inclusive min/max range, collapsing a single date.
// ISO dates sort lexicographically, so min/max needs no parsing.
func dateRange(dates []model.Date) string {
	if len(dates) == 0 {
		return ""
	}
	lo, hi := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	if lo == hi {
		return lo.Short()
	}
	return lo.Short() + " - " + hi.Short()
}
