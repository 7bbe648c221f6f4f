package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/fsindex/internal/indexer"
	"github.com/dshills/fsindex/internal/searcher"
	"github.com/dshills/fsindex/internal/storage"
)

// ServerName is the MCP server name
const ServerName = "fsindex"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	backend  storage.Backend
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// NewServer creates a new MCP server instance over an existing engine.
// The caller owns backend and closes it after Serve returns.
func NewServer(idx *indexer.Indexer, srch *searcher.Searcher, backend storage.Backend, version string) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, version),
		backend:  backend,
		indexer:  idx,
		searcher: srch,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchPathsTool(), s.handleSearchPaths)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(indexNowTool(), s.handleIndexNow)
	s.mcp.AddTool(getPathTool(), s.handleGetPath)
}
