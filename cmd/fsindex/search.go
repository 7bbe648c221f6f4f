package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/fsindex/internal/searcher"
)

var searchOpts struct {
	path     string
	limit    int
	offset   int
	fulltext bool
	json     bool
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the index by filename prefix",
	Long: `Search for files and directories whose name starts with term
(case-insensitive). With --fulltext, term is matched against the words of
the whole path instead.

Examples:
  fsindex search molly
  fsindex search invoice_2024 --path /srv/share/accounting
  fsindex search apollo --fulltext --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		resp, err := a.searcher.Search(cmd.Context(), searcher.Request{
			Term:       args[0],
			PathPrefix: searchOpts.path,
			Fulltext:   searchOpts.fulltext,
			Limit:      searchOpts.limit,
			Offset:     searchOpts.offset,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if searchOpts.json {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		if len(resp.Hits) == 0 {
			fmt.Fprintln(out, "No results found")
			return nil
		}

		for _, hit := range resp.Hits {
			file := hit.Source.File
			line := fmt.Sprintf("[%s] %s", file.Kind, hit.Source.Path.Real)
			if file.Filesize != nil && file.Kind != "directory" {
				line += fmt.Sprintf("  (%s)", humanize.Bytes(uint64(*file.Filesize)))
			}
			fmt.Fprintln(out, line)
		}
		if resp.Total > int64(len(resp.Hits)) {
			fmt.Fprintf(out, "%s of %s results shown\n",
				humanize.Comma(int64(len(resp.Hits))), humanize.Comma(resp.Total))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchOpts.path, "path", "p", "", "restrict results to this directory")
	searchCmd.Flags().IntVarP(&searchOpts.limit, "limit", "n", searcher.DefaultLimit, "maximum number of results (1-1000)")
	searchCmd.Flags().IntVar(&searchOpts.offset, "offset", 0, "number of results to skip")
	searchCmd.Flags().BoolVar(&searchOpts.fulltext, "fulltext", false, "match words anywhere in the path")
	searchCmd.Flags().BoolVar(&searchOpts.json, "json", false, "print the response as JSON")
	rootCmd.AddCommand(searchCmd)
}
