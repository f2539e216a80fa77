// Package ingest handles the primary write paths that are not edits: daily
// batch ingestion, publishing, full backfills and entity metadata updates.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/fault"
	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/store"
	"github.com/civistat/civistat/internal/validate"
)

// Ingestor owns batch creation for daily pushes and backfills.
type Ingestor struct {
	store store.Store
}

func New(s store.Store) *Ingestor {
	return &Ingestor{store: s}
}

// Daily commits one daily batch. The batch starts unpublished unless the
// context asks for publish-at-creation. Every row's entity must already be
// configured; a daily push never creates entities.
func (i *Ingestor) Daily(ctx context.Context, bc model.BatchContext, rows []model.Row) (*model.Batch, error) {
	requestID := uuid.NewString()
	if err := validate.Rows(rows); err != nil {
		return nil, err
	}

	facts, err := i.buildFacts(ctx, rows, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	batch := &model.Batch{
		CreatedAt:   now,
		IsPublished: bc.Publish,
		EntryType:   model.EntryTypeDaily,
		Note:        bc.Note,
		User:        bc.User,
		Link:        bc.Link,
		Category:    bc.Category,
	}
	if bc.Publish {
		batch.PublishedAt = &now
	}

	if err := i.store.CommitBatch(ctx, batch, facts); err != nil {
		return nil, err
	}
	zap.L().Info("committed daily batch",
		zap.String("request_id", requestID),
		zap.Int64("batch_id", batch.ID),
		zap.Int("facts", len(facts)),
		zap.Bool("published", batch.IsPublished))
	return batch, nil
}

// Publish flips a batch's publish flag. Facts are never rewritten; a second
// publish of the same batch is a conflict.
func (i *Ingestor) Publish(ctx context.Context, id int64) (*model.Batch, error) {
	batch, err := i.store.PublishBatch(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	zap.L().Info("published batch", zap.Int64("batch_id", id))
	return batch, nil
}

// Backfill wipes the store and reloads it from a snapshot as one published
// batch. Unknown fields in snapshot rows are logged and dropped rather than
// rejected; historical exports carry columns the schema no longer declares.
func (i *Ingestor) Backfill(ctx context.Context, bc model.BatchContext, entities []model.Entity, rows []model.Row) (*model.Batch, error) {
	if err := validate.KnownFields(rows, false); err != nil {
		return nil, err
	}
	if err := validate.Numeric(rows); err != nil {
		return nil, err
	}
	if err := validate.Required(rows); err != nil {
		return nil, err
	}

	if err := i.store.Reset(ctx); err != nil {
		return nil, err
	}
	if err := i.store.UpsertEntities(ctx, entities); err != nil {
		return nil, err
	}

	facts, err := i.buildFacts(ctx, rows, false)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	note := bc.Note
	if note == "" {
		note = "backfill"
	}
	batch := &model.Batch{
		CreatedAt:   now,
		IsPublished: true,
		PublishedAt: &now,
		EntryType:   model.EntryTypeDaily,
		Note:        note,
		User:        bc.User,
	}
	if err := i.store.CommitBatch(ctx, batch, facts); err != nil {
		return nil, err
	}
	zap.L().Info("backfill complete",
		zap.Int64("batch_id", batch.ID),
		zap.Int("entities", len(entities)),
		zap.Int("facts", len(facts)))
	return batch, nil
}

// LoadEntities upserts entity configurations from a seed file.
func (i *Ingestor) LoadEntities(ctx context.Context, entities []model.Entity) error {
	return i.store.UpsertEntities(ctx, entities)
}

// UpdateEntity changes metadata for an existing entity; an unknown code is
// a not-found error, never an implicit create.
func (i *Ingestor) UpdateEntity(ctx context.Context, entity model.Entity) error {
	return i.store.UpdateEntity(ctx, entity)
}

// buildFacts converts rows to facts, enforcing at most one fact per
// (entity, date) within the batch. When checkEntities is set, each distinct
// entity must already exist in the store.
func (i *Ingestor) buildFacts(ctx context.Context, rows []model.Row, checkEntities bool) ([]model.Fact, error) {
	type key struct {
		entity string
		date   model.Date
	}
	seen := map[key]bool{}
	known := map[string]bool{}

	facts := make([]model.Fact, 0, len(rows))
	for _, row := range rows {
		f, err := model.FactFromRow(row)
		if err != nil {
			return nil, fault.Validationf("row %s %s: %v", row.Entity(), row.DateString(), err)
		}
		k := key{f.Entity, f.Date}
		if seen[k] {
			return nil, fault.Validationf("duplicate row for %s %s in batch", f.Entity, f.Date)
		}
		seen[k] = true

		if checkEntities && !known[f.Entity] {
			if _, err := i.store.GetEntity(ctx, f.Entity); err != nil {
				return nil, err
			}
			known[f.Entity] = true
		}
		facts = append(facts, f)
	}
	return facts, nil
}
