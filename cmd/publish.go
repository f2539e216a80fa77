package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/ingest"
)

var publishCmd = &cobra.Command{
	Use:   "publish <batch-id>",
	Short: "Publish a batch, making its facts visible to published readers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid batch id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		batch, err := ingest.New(st).Publish(ctx, id)
		if err != nil {
			return eris.Wrap(err, "publish")
		}

		zap.L().Info("publish complete", zap.Int64("batch_id", batch.ID))
		return printJSON(batch)
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
