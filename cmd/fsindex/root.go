package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	traceSpans bool
)

var rootCmd = &cobra.Command{
	Use:   "fsindex",
	Short: "Keep a search index in sync with directory trees",
	Long: `fsindex walks one or more directory trees and mirrors every file and
directory path into a search index, so that shares can be searched by
filename without touching the filesystem.

Each run stamps every document it sees with the run's epoch and afterwards
deletes the documents that were not seen, so the index converges to the
current state of the trees.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are printed with a timestamp and
// terminate the process with exit code 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s fsindex: %v\n", time.Now().Format(time.RFC3339), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $FSINDEX_CONFIG or /etc/fsindex/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every excluded path and visited directory")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "write OpenTelemetry spans of runs and requests to stderr")
}

// newLogger returns the text logger used by all commands. Logs go to
// stderr; stdout is reserved for command output and the MCP protocol.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
