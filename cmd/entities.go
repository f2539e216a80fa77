package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/ingest"
	"github.com/civistat/civistat/internal/model"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage entity configuration",
}

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured entities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		entities, err := st.ListEntities(ctx)
		if err != nil {
			return eris.Wrap(err, "list entities")
		}

		type view struct {
			model.Entity
			Source string `json:"totalResultsSource"`
		}
		out := make([]view, len(entities))
		for i, e := range entities {
			out[i] = view{Entity: e, Source: e.TotalResultsSource.String()}
		}
		return printJSON(out)
	},
}

var entitiesLoadFile string

var entitiesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Upsert entities from a seed YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path := entitiesLoadFile
		if path == "" {
			path = cfg.Ingest.EntityFile
		}
		entities, err := readEntityFile(path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		if err := ingest.New(st).LoadEntities(ctx, entities); err != nil {
			return eris.Wrap(err, "load entities")
		}
		zap.L().Info("entities loaded", zap.Int("count", len(entities)), zap.String("file", path))
		return nil
	},
}

var (
	entitySetCode   string
	entitySetSource string
)

var entitiesSetSourceCmd = &cobra.Command{
	Use:   "set-source",
	Short: "Change how an entity's total results are derived",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, err := model.ParseTotalResultsSource(entitySetSource)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		entity, err := st.GetEntity(ctx, entitySetCode)
		if err != nil {
			return eris.Wrap(err, "get entity")
		}
		entity.TotalResultsSource = src

		if err := ingest.New(st).UpdateEntity(ctx, *entity); err != nil {
			return eris.Wrap(err, "update entity")
		}
		zap.L().Info("entity source updated",
			zap.String("entity", entitySetCode),
			zap.String("source", src.String()),
		)
		return nil
	},
}

func init() {
	entitiesLoadCmd.Flags().StringVar(&entitiesLoadFile, "file", "", "path to entity seed YAML")
	entitiesSetSourceCmd.Flags().StringVar(&entitySetCode, "entity", "", "entity code (required)")
	entitiesSetSourceCmd.Flags().StringVar(&entitySetSource, "source", "", "posNeg or a numeric field id (required)")
	_ = entitiesSetSourceCmd.MarkFlagRequired("entity")
	_ = entitiesSetSourceCmd.MarkFlagRequired("source")

	entitiesCmd.AddCommand(entitiesListCmd, entitiesLoadCmd, entitiesSetSourceCmd)
	rootCmd.AddCommand(entitiesCmd)
}
