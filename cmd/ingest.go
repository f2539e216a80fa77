package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/ingest"
	"github.com/civistat/civistat/internal/model"
)

var (
	ingestFile    string
	ingestNote    string
	ingestUser    string
	ingestPublish bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Commit a daily batch from a JSON rows file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rows, err := readRows(ingestFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		user := ingestUser
		if user == "" {
			user = cfg.Ingest.User
		}

		batch, err := ingest.New(st).Daily(ctx, model.BatchContext{
			EntryType: model.EntryTypeDaily,
			Note:      ingestNote,
			User:      user,
			Publish:   ingestPublish,
		}, rows)
		if err != nil {
			return eris.Wrap(err, "ingest daily")
		}

		zap.L().Info("ingest complete",
			zap.Int64("batch_id", batch.ID),
			zap.Int("rows", len(rows)),
			zap.Bool("published", batch.IsPublished),
		)
		return printJSON(batch)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to JSON rows file (required)")
	ingestCmd.Flags().StringVar(&ingestNote, "note", "", "batch note")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "submitter identity")
	ingestCmd.Flags().BoolVar(&ingestPublish, "publish", false, "publish the batch at creation")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
