package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/fsindex/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		out := cmd.OutOrStdout()
		index := a.indexer.Index()

		st, err := a.backend.Status(cmd.Context(), index)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(out, "Index %q does not exist yet. Run 'fsindex index' first.\n", index)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Index:        %s\n", st.Name)
		fmt.Fprintf(out, "Database:     %s (%s)\n", a.cfg.Storage.Path, humanize.Bytes(uint64(st.DatabaseBytes)))
		fmt.Fprintf(out, "Documents:    %s\n", humanize.Comma(st.Documents))
		fmt.Fprintf(out, "Files:        %s\n", humanize.Comma(st.Files))
		fmt.Fprintf(out, "Directories:  %s\n", humanize.Comma(st.Directories))
		if st.NewestEpoch > 0 {
			fmt.Fprintf(out, "Newest epoch: %d (%s)\n", st.NewestEpoch, humanize.Time(time.Unix(st.NewestEpoch, 0)))
			fmt.Fprintf(out, "Oldest epoch: %d (%s)\n", st.OldestEpoch, humanize.Time(time.Unix(st.OldestEpoch, 0)))
		}
		if !st.RefreshedAt.IsZero() {
			fmt.Fprintf(out, "Refreshed:    %s\n", humanize.Time(st.RefreshedAt))
		}
		fmt.Fprintf(out, "Query log:    %t\n", st.QueryLog)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
