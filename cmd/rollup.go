package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civistat/civistat/internal/export"
	"github.com/civistat/civistat/internal/resolver"
	"github.com/civistat/civistat/internal/rollup"
)

var (
	rollupPreview bool
	rollupLimit   int
	rollupCSVPath string
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Show the national daily series summed across entities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		rows, err := rollup.New(resolver.New(st)).Rollup(ctx, rollupPreview, rollupLimit)
		if err != nil {
			return eris.Wrap(err, "rollup")
		}

		if rollupCSVPath == "" {
			return printJSON(rows)
		}
		f, err := os.Create(rollupCSVPath)
		if err != nil {
			return eris.Wrapf(err, "create %s", rollupCSVPath)
		}
		defer f.Close() //nolint:errcheck
		return export.WriteRollup(f, rows)
	},
}

func init() {
	rollupCmd.Flags().BoolVar(&rollupPreview, "preview", false, "include unpublished batches")
	rollupCmd.Flags().IntVar(&rollupLimit, "limit", 0, "most-recent dates to keep per entity (0 = all)")
	rollupCmd.Flags().StringVar(&rollupCSVPath, "csv", "", "write CSV to this path instead of JSON to stdout")
	rootCmd.AddCommand(rollupCmd)
}
