// Package mcp implements the Model Context Protocol (MCP) server for fsindex.
//
// The MCP server exposes four tools to AI assistants:
//   - search_paths: Find files and directories by filename prefix or path words
//   - get_status: Report the synchronization state and index statistics
//   - index_now: Run a synchronization immediately, or import a single path
//   - get_path: Look up the stored document of one path
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
// The MCP server is started via the serve-mcp command:
//
//	fsindex serve-mcp --config /etc/fsindex/config.yaml
//
// # Tool: search_paths
//
//	Request:
//	{
//	  "name": "search_paths",
//	  "arguments": {
//	    "query": "invoice_2024",
//	    "path": "/srv/share/accounting",
//	    "limit": 20
//	  }
//	}
//
//	Response:
//	{
//	  "total": 2,
//	  "results": [
//	    {"rank": 1, "path": "/srv/share/accounting/invoice_2024_01.pdf", "filename": "invoice_2024_01.pdf", "kind": "file"},
//	    {"rank": 2, "path": "/srv/share/accounting/invoice_2024_02.pdf", "filename": "invoice_2024_02.pdf", "kind": "file"}
//	  ],
//	  "cache_hit": false,
//	  "duration_ms": 3
//	}
//
// # Tool: get_status
//
//	Response:
//	{
//	  "index": "files",
//	  "directories": ["/srv/share"],
//	  "state": "idle",
//	  "indexed": true,
//	  "last_run": {"run_id": "…", "epoch": 1714561200, "indexed": 48211, "deleted": 17},
//	  "statistics": {"documents": 48211, "files": 45012, "directories": 3199}
//	}
//
// # Tool: index_now
//
// Without arguments a full run is started and the call returns when it
// finished. With "path" only that file or directory is upserted; it must lie
// below a configured directory and must not be excluded.
//
// # Tool: get_path
//
// Looks the path up by its document id. A path that was never written, or
// was removed by a run, answers {"indexed": false}.
//
// # Error Handling
//
// Tool errors are returned as *MCPError with JSON-RPC codes:
//   - -32602: Invalid parameters
//   - -32603: Internal error
//   - -32002: Synchronization already in progress
//   - -32003: Index does not exist yet
//   - -32004: Empty query
//   - -32005: Search backend unavailable
package mcp
