package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/model"
	"github.com/civistat/civistat/internal/notify"
	"github.com/civistat/civistat/internal/reconcile"
	"github.com/civistat/civistat/internal/resolver"
)

var (
	editEntity   string
	editFile     string
	editNote     string
	editUser     string
	editLink     string
	editCategory string
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Reconcile a partial edit against the latest visible state",
	Long:  "Diffs submitted rows against the currently visible facts for the target entity and commits only the changes as a new published batch. Fields omitted from a submitted row are cleared, not carried forward.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rows, err := readRows(editFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		user := editUser
		if user == "" {
			user = cfg.Ingest.User
		}

		rec := reconcile.New(st, resolver.New(st), notify.New(cfg.Notify))
		result, err := rec.EditEntity(ctx, model.BatchContext{
			EntryType:    model.EntryTypeEdit,
			Note:         editNote,
			User:         user,
			Link:         editLink,
			Category:     editCategory,
			TargetEntity: editEntity,
		}, rows)
		if err != nil {
			return eris.Wrap(err, "edit")
		}

		zap.L().Info("edit complete",
			zap.Int64("batch_id", result.Batch.ID),
			zap.Int("rows_edited", result.Batch.RowsEdited),
		)
		return printJSON(result)
	},
}

func init() {
	editCmd.Flags().StringVar(&editEntity, "entity", "", "target entity code (required)")
	editCmd.Flags().StringVar(&editFile, "file", "", "path to JSON rows file (required)")
	editCmd.Flags().StringVar(&editNote, "note", "", "note explaining the edit (required)")
	editCmd.Flags().StringVar(&editUser, "user", "", "submitter identity")
	editCmd.Flags().StringVar(&editLink, "link", "", "source link for the edit")
	editCmd.Flags().StringVar(&editCategory, "category", "", "edit category")
	_ = editCmd.MarkFlagRequired("entity")
	_ = editCmd.MarkFlagRequired("file")
	_ = editCmd.MarkFlagRequired("note")
	rootCmd.AddCommand(editCmd)
}
