package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sharkbench/internal/config"
	"sharkbench/internal/db"
	"sharkbench/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var (
		kind  string
		path  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded benchmark runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "" && kind != db.KindComputation && kind != db.KindWeb {
				return fmt.Errorf("invalid kind %q (expected %s or %s)", kind, db.KindComputation, db.KindWeb)
			}
			s := config.Current()
			if !s.HistoryEnabled {
				return fmt.Errorf("history is disabled (history.enabled=false)")
			}

			store, err := newStore(db.StoreConfig{Type: s.HistoryType, ConnectionString: s.HistoryDSN})
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), db.RunFilter{Kind: kind, Path: path, Limit: limit})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderHistory(runs))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list runs of this suite (computation or web)")
	cmd.Flags().StringVar(&path, "path", "", "Only list runs of this target (lang/variant)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}
