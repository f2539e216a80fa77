package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List all batches in the ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		batches, err := st.ListBatches(ctx)
		if err != nil {
			return eris.Wrap(err, "list batches")
		}
		return printJSON(batches)
	},
}

func init() {
	rootCmd.AddCommand(batchesCmd)
}
