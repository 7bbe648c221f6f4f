package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchPathsTool returns the tool definition for search_paths
func searchPathsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_paths",
		Description: "Find files and directories in the indexed shares by filename prefix or path words",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Filename prefix (e.g. 'invoice_2024'), or words of the path when fulltext is set",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute directory to restrict the search to",
				},
				"fulltext": map[string]interface{}{
					"type":        "boolean",
					"description": "Match words anywhere in the path instead of the filename prefix",
					"default":     false,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-1000)",
					"default":     100,
					"minimum":     1,
					"maximum":     1000,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results to skip",
					"default":     0,
					"minimum":     0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the synchronization state, the last run and index statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// indexNowTool returns the tool definition for index_now
func indexNowTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_now",
		Description: "Synchronize the index with the configured directories now, or import a single path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path below a configured directory to import alone; omit for a full run",
				},
			},
		},
	}
}

// getPathTool returns the tool definition for get_path
func getPathTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_path",
		Description: "Look up the indexed document of one file or directory by its absolute path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the file or directory",
				},
			},
			Required: []string{"path"},
		},
	}
}
