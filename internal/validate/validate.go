// Package validate gates incoming rows before anything is written. All
// checks run to completion before reconciliation begins; a failure here
// guarantees zero partial state.
package validate

import (
	"errors"

	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/fault"
	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/schema"
)

// Required checks that every row carries a non-empty entity code and date.
func Required(rows []model.Row) error {
	for _, row := range rows {
		if row.Entity() == "" {
			return fault.Validationf("missing value for %q in row %v", schema.KeyEntity, row)
		}
		if row.DateString() == "" {
			return fault.Validationf("missing value for %q in row %v", schema.KeyDate, row)
		}
	}
	return nil
}

// Numeric checks that every populated numeric field parses as a
// non-negative integer.
func Numeric(rows []model.Row) error {
	numericIDs := schema.NumericIDs()
	for _, row := range rows {
		for _, id := range numericIDs {
			v, ok := row[id]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			if _, err := model.ParseNumeric(v); err != nil {
				if errors.Is(err, model.ErrNegative) {
					return fault.Validationf("negative value for field '%s %s': %v", row.Entity(), id, v)
				}
				return fault.Validationf("non-numeric value for field '%s %s': %v", row.Entity(), id, v)
			}
		}
	}
	return nil
}

// KnownFields checks that every key in every row is declared by the schema.
// On the primary write path (strict) an unknown key is a hard error; on
// best-effort paths it is logged and the key is left for callers to ignore.
func KnownFields(rows []model.Row, strict bool) error {
	for _, row := range rows {
		for k := range row {
			if schema.Known(k) {
				continue
			}
			if strict {
				return fault.Validationf("unknown field %q in row for entity %s", k, row.Entity())
			}
			zap.L().Warn("validate: ignoring unknown field",
				zap.String("field", k),
				zap.String("entity", row.Entity()),
			)
		}
	}
	return nil
}

// Rows runs the full row gate for the primary write path.
func Rows(rows []model.Row) error {
	if err := KnownFields(rows, true); err != nil {
		return err
	}
	if err := Numeric(rows); err != nil {
		return err
	}
	return Required(rows)
}

// EditContext checks an edit batch context. The reconcile-by-entity flavor
// additionally requires a target entity.
func EditContext(ctx model.BatchContext, requireEntity bool) error {
	if ctx.EntryType != model.EntryTypeEdit {
		return fault.Validationf("context must carry entry type %q", model.EntryTypeEdit)
	}
	if ctx.Note == "" {
		return fault.Validationf("context must carry a note explaining the edit")
	}
	if requireEntity && ctx.TargetEntity == "" {
		return fault.Validationf("no entity specified in edit context")
	}
	return nil
}
