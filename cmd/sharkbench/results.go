package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"sharkbench/internal/config"
	"sharkbench/internal/db"
	"sharkbench/internal/resultstore"
	"sharkbench/internal/suite"
	"sharkbench/internal/ui"
)

func newResultsCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:       "results {computation|web}",
		Short:     "Print a result table",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{db.KindComputation, db.KindWeb},
		RunE: func(cmd *cobra.Command, args []string) error {
			file := suite.ComputationResultFile
			if args[0] == db.KindWeb {
				file = suite.WebResultFile
			}
			path := filepath.Join(config.Current().ResultDir, file)

			header, rows, err := resultstore.Read(path)
			if err != nil {
				return err
			}
			if header == nil {
				return fmt.Errorf("no results in %s", path)
			}

			if lang != "" {
				col := slices.Index(header, "path")
				rows = slices.DeleteFunc(rows, func(row []string) bool {
					return col < 0 || col >= len(row) || !strings.HasPrefix(row[col], lang+"/")
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderTable(header, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Only show rows of this language directory")
	return cmd
}
