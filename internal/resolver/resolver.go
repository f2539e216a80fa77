// Package resolver provides the latest-state view over the fact ledger.
package resolver

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/store"
)

// Resolver answers "what is the visible fact for (entity, date)" questions.
// It holds no state; every call re-queries the store so readers always see
// the newest committed batches.
type Resolver struct {
	store store.Store
}

func New(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Latest returns the visible fact per (entity, date) under the filter,
// ordered by date descending then entity ascending. The visible fact is the
// one attached to the maximum batch id among batches passing the filter.
func (r *Resolver) Latest(ctx context.Context, filter store.FactFilter) ([]model.Fact, error) {
	facts, err := r.store.LatestFacts(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: latest facts")
	}
	zap.L().Debug("resolved latest facts",
		zap.Int("count", len(facts)),
		zap.Bool("preview", filter.Preview),
		zap.Strings("entities", filter.Entities))
	return facts, nil
}

// LatestByDate returns one entity's visible facts keyed by date. The edit
// reconciler uses this to look up the prior record for each submitted row.
func (r *Resolver) LatestByDate(ctx context.Context, entity string, preview bool) (map[model.Date]model.Fact, error) {
	facts, err := r.Latest(ctx, store.FactFilter{Entities: []string{entity}, Preview: preview})
	if err != nil {
		return nil, err
	}
	byDate := make(map[model.Date]model.Fact, len(facts))
	for _, f := range facts {
		byDate[f.Date] = f
	}
	return byDate, nil
}

// EntityConfig returns all entity configurations keyed by code. Derived
// fields such as total results depend on the owning entity's configuration,
// so aggregation callers pair this with Latest.
func (r *Resolver) EntityConfig(ctx context.Context) (map[string]model.Entity, error) {
	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: list entities")
	}
	byCode := make(map[string]model.Entity, len(entities))
	for _, e := range entities {
		byCode[e.Code] = e
	}
	return byCode, nil
}
