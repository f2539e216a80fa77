package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civistat/civistat/internal/export"
	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/resolver"
	"github.com/civistat/civistat/internal/store"
)

var (
	dailyEntities []string
	dailyDate     string
	dailyPreview  bool
	dailyLimit    int
	dailyCSVPath  string
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Show the latest visible fact per (entity, date)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		var date model.Date
		if dailyDate != "" {
			date, err = model.ParseDate(dailyDate)
			if err != nil {
				return err
			}
		}

		res := resolver.New(st)
		facts, err := res.Latest(ctx, store.FactFilter{
			Entities: dailyEntities,
			Date:     date,
			Preview:  dailyPreview,
			Limit:    dailyLimit,
		})
		if err != nil {
			return eris.Wrap(err, "resolve daily")
		}

		if dailyCSVPath == "" {
			return printJSON(facts)
		}

		entities, err := res.EntityConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "entity config")
		}
		f, err := os.Create(dailyCSVPath)
		if err != nil {
			return eris.Wrapf(err, "create %s", dailyCSVPath)
		}
		defer f.Close() //nolint:errcheck
		return export.WriteDaily(f, facts, entities)
	},
}

func init() {
	dailyCmd.Flags().StringSliceVar(&dailyEntities, "entity", nil, "restrict to entity code(s)")
	dailyCmd.Flags().StringVar(&dailyDate, "date", "", "restrict to a single date")
	dailyCmd.Flags().BoolVar(&dailyPreview, "preview", false, "include unpublished batches")
	dailyCmd.Flags().IntVar(&dailyLimit, "limit", 0, "most-recent dates to keep per entity (0 = all)")
	dailyCmd.Flags().StringVar(&dailyCSVPath, "csv", "", "write CSV to this path instead of JSON to stdout")
	rootCmd.AddCommand(dailyCmd)
}
