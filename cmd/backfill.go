package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/civistat/civistat/internal/ingest"
	"github.com/civistat/civistat/internal/model"
)

var (
	backfillEntityFile string
	backfillRowsFile   string
	backfillNote       string
	backfillUser       string
	backfillYes        bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Wipe the store and reload it from a snapshot as one published batch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if !backfillYes {
			return eris.New("backfill wipes all existing data; pass --yes to confirm")
		}

		entities, err := readEntityFile(backfillEntityFile)
		if err != nil {
			return err
		}
		rows, err := readRows(backfillRowsFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		user := backfillUser
		if user == "" {
			user = cfg.Ingest.User
		}

		batch, err := ingest.New(st).Backfill(ctx, model.BatchContext{
			Note: backfillNote,
			User: user,
		}, entities, rows)
		if err != nil {
			return eris.Wrap(err, "backfill")
		}

		zap.L().Info("backfill complete",
			zap.Int64("batch_id", batch.ID),
			zap.Int("entities", len(entities)),
			zap.Int("rows", len(rows)),
		)
		return nil
	},
}

func readEntityFile(path string) ([]model.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read entity file %s", path)
	}
	var entities []model.Entity
	if err := yaml.Unmarshal(data, &entities); err != nil {
		return nil, eris.Wrapf(err, "decode entity file %s", path)
	}
	return entities, nil
}

func init() {
	backfillCmd.Flags().StringVar(&backfillEntityFile, "entities", "", "path to entity seed YAML (required)")
	backfillCmd.Flags().StringVar(&backfillRowsFile, "file", "", "path to snapshot JSON rows file (required)")
	backfillCmd.Flags().StringVar(&backfillNote, "note", "", "batch note")
	backfillCmd.Flags().StringVar(&backfillUser, "user", "", "submitter identity")
	backfillCmd.Flags().BoolVar(&backfillYes, "yes", false, "confirm the wipe")
	_ = backfillCmd.MarkFlagRequired("entities")
	_ = backfillCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(backfillCmd)
}
