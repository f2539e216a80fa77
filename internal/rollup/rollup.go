// Package rollup aggregates resolved facts into a national daily series.
package rollup

import (
	"context"

	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/resolver"
	"github.com/civistat/civistat/internal/schema"
	"github.com/civistat/civistat/internal/store"
)

// AggregateRow is one date summed across all entities' latest visible facts.
type AggregateRow struct {
	Date model.Date `json:"date"`
	// EntityCount is the number of entities contributing a fact for the date.
	EntityCount int `json:"entityCount"`
	// Sums holds per-field totals keyed by schema id; entities without a
	// value for a field contribute zero.
	Sums map[string]int64 `json:"sums"`
	// TotalResults sums each entity's derived total-results value, resolved
	// under that entity's own configured source before aggregation.
	TotalResults int64 `json:"totalTestResults"`
}

// Aggregator computes national rollups from resolver output.
type Aggregator struct {
	resolver *resolver.Resolver
}

func New(r *resolver.Resolver) *Aggregator {
	return &Aggregator{resolver: r}
}

// Rollup returns one aggregate row per date, ordered by date descending.
// Total results cannot be summed from a single shared column: each entity's
// value is resolved from its own totalResultsSource first, then summed.
func (a *Aggregator) Rollup(ctx context.Context, preview bool, limit int) ([]AggregateRow, error) {
	facts, err := a.resolver.Latest(ctx, store.FactFilter{Preview: preview, Limit: limit})
	if err != nil {
		return nil, err
	}
	entities, err := a.resolver.EntityConfig(ctx)
	if err != nil {
		return nil, err
	}

	aggregable := schema.AggregableIDs()
	byDate := map[model.Date]*AggregateRow{}
	var order []model.Date

	for i := range facts {
		f := &facts[i]
		row, ok := byDate[f.Date]
		if !ok {
			row = &AggregateRow{Date: f.Date, Sums: make(map[string]int64, len(aggregable))}
			byDate[f.Date] = row
			order = append(order, f.Date)
		}
		row.EntityCount++
		for _, id := range aggregable {
			if v := f.Numeric(id); v != nil {
				row.Sums[id] += *v
			}
		}
		// An entity missing from the config table falls back to the
		// zero source, which is the positive+negative sum.
		if v := f.TotalResults(entities[f.Entity].TotalResultsSource); v != nil {
			row.TotalResults += *v
		}
	}

	// Resolver output is date-descending, so first-seen order is already
	// the output order.
	out := make([]AggregateRow, 0, len(order))
	for _, d := range order {
		out = append(out, *byDate[d])
	}
	return out, nil
}
