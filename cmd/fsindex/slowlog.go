package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/fsindex/internal/storage"
)

var slowlogCmd = &cobra.Command{
	Use:   "slowlog enable|disable",
	Short: "Toggle logging of every search query",
	Long: `Toggle the per-index query log. When enabled, the backend logs every
search with its term, path restriction, hit count and duration.`,
	ValidArgs: []string{"enable", "disable"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		enabled := args[0] == "enable"
		index := a.indexer.Index()

		err = a.backend.SetQueryLog(cmd.Context(), index, enabled)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("index %q does not exist yet, run 'fsindex index' first: %w", index, err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Query log %sd for %q\n", args[0], index)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(slowlogCmd)
}
