package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civistat/civistat/internal/model"
)

var (
	historyEntity string
	historyDate   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every published version of one (entity, date) fact",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, err := model.ParseDate(historyDate)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		facts, err := st.FactHistory(ctx, historyEntity, date)
		if err != nil {
			return eris.Wrap(err, "fact history")
		}
		return printJSON(facts)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyEntity, "entity", "", "entity code (required)")
	historyCmd.Flags().StringVar(&historyDate, "date", "", "date, ISO or compact (required)")
	_ = historyCmd.MarkFlagRequired("entity")
	_ = historyCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(historyCmd)
}
