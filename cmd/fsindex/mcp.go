package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/fsindex/internal/mcp"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the search_paths, get_status, index_now and get_path MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout so AI assistants can
search the index and trigger synchronizations. Logs are written to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		server := mcp.NewServer(a.indexer, a.searcher, a.backend, version)

		errChan := make(chan error, 1)
		go func() {
			a.logger.Info("MCP server ready, listening on stdio")
			errChan <- server.Serve(ctx)
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down MCP server")
			return nil
		case err := <-errChan:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveMCPCmd)
}
