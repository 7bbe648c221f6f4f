package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/fsindex/internal/scheduler"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Synchronize the index once",
	Long: `Walk all configured directories once, upsert every file and directory
and delete the documents of paths that no longer exist.

With a path argument only that file or directory is imported. It must lie
below one of the configured directories and must not be excluded.

Examples:
  fsindex index
  fsindex index /srv/share/projects/apollo`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		out := cmd.OutOrStdout()

		if len(args) == 1 {
			doc, err := a.indexer.IndexPath(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Indexed %s %s\n", doc.Source.File.Kind, doc.Source.Path.Real)
			return nil
		}

		stats, err := scheduler.New(a.indexer, a.cfg.Interval(), a.logger).RunOnce(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Run %s (epoch %d)\n", stats.RunID, stats.Epoch)
		fmt.Fprintf(out, "  indexed:  %s\n", humanize.Comma(stats.Indexed))
		fmt.Fprintf(out, "  excluded: %s\n", humanize.Comma(stats.Excluded))
		fmt.Fprintf(out, "  skipped:  %s\n", humanize.Comma(stats.Skipped))
		fmt.Fprintf(out, "  deleted:  %s\n", humanize.Comma(stats.Deleted))
		fmt.Fprintf(out, "  duration: %s\n", stats.Duration.Round(time.Millisecond))
		for _, dir := range stats.Visited {
			fmt.Fprintf(out, "  visited:  %s\n", dir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
