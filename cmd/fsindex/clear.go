package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every document of the index",
	Long: `Delete every document of the index. The index itself and its mapping are
kept; the next run rebuilds the content. Refused while a run is active.

On a terminal the command asks for confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		out := cmd.OutOrStdout()
		index := a.indexer.Index()

		if !clearYes && isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintf(out, "Delete every document of %q? [y/N] ", index)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if !strings.EqualFold(strings.TrimSpace(answer), "y") {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
		}

		deleted, err := a.indexer.Clear(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %s documents from %q\n", humanize.Comma(deleted), index)
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(clearCmd)
}
