package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/fsindex/internal/searcher"
	"github.com/dshills/fsindex/internal/storage"
	"github.com/dshills/fsindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another synchronization run is active
	ErrorCodeNotIndexed         = -32003 // Index does not exist yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeBackendUnavailable = -32005 // Search backend cannot be reached
)

// handleSearchPaths handles the search_paths tool invocation
func (s *Server) handleSearchPaths(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	path := getStringDefault(args, "path", "")
	if path != "" && !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 1000", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	offset := getIntDefault(args, "offset", 0)
	if offset < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "offset must not be negative", map[string]interface{}{
			"param": "offset",
			"value": offset,
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Term:       query,
		PathPrefix: path,
		Fulltext:   getBoolDefault(args, "fulltext", false),
		Limit:      limit,
		Offset:     offset,
	})
	switch {
	case errors.Is(err, types.ErrEmptyTerm):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	case errors.Is(err, storage.ErrNotFound):
		return nil, newMCPError(ErrorCodeNotIndexed, "index does not exist yet; run index_now first", nil)
	case errors.Is(err, types.ErrBackendUnavailable):
		return nil, newMCPError(ErrorCodeBackendUnavailable, "search backend unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		result := map[string]interface{}{
			"rank":     hit.Rank,
			"path":     hit.Source.Path.Real,
			"filename": hit.Source.File.Filename,
			"kind":     string(hit.Source.File.Kind),
		}
		if hit.Source.File.Filesize != nil {
			result["size"] = *hit.Source.File.Filesize
		}
		if hit.Source.File.LastModified != nil {
			result["last_modified"] = hit.Source.File.LastModified.Format(time.RFC3339)
		}
		results = append(results, result)
	}

	response := map[string]interface{}{
		"total":       resp.Total,
		"results":     results,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response := map[string]interface{}{
		"index":       s.indexer.Index(),
		"directories": s.indexer.Roots(),
		"state":       s.indexer.Phase().String(),
	}

	if run := s.indexer.LastRun(); run != nil {
		response["last_run"] = map[string]interface{}{
			"run_id":      run.RunID,
			"epoch":       run.Epoch,
			"started_at":  run.StartedAt.Format(time.RFC3339),
			"indexed":     run.Indexed,
			"excluded":    run.Excluded,
			"skipped":     run.Skipped,
			"deleted":     run.Deleted,
			"duration_ms": run.Duration.Milliseconds(),
		}
	}

	status, err := s.backend.Status(ctx, s.indexer.Index())
	if errors.Is(err, storage.ErrNotFound) {
		response["indexed"] = false
		response["message"] = "Index does not exist yet. Use index_now to synchronize the directories."
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response["indexed"] = true
	response["statistics"] = map[string]interface{}{
		"documents":     status.Documents,
		"files":         status.Files,
		"directories":   status.Directories,
		"oldest_epoch":  status.OldestEpoch,
		"newest_epoch":  status.NewestEpoch,
		"query_log":     status.QueryLog,
		"index_size_mb": fmt.Sprintf("%.2f", float64(status.DatabaseBytes)/(1024*1024)),
	}
	if !status.RefreshedAt.IsZero() {
		response["refreshed_at"] = status.RefreshedAt.Format(time.RFC3339)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexNow handles the index_now tool invocation
func (s *Server) handleIndexNow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	if path := getStringDefault(args, "path", ""); path != "" {
		return s.indexSinglePath(ctx, path)
	}

	stats, err := s.indexer.TryRun(ctx)
	if errors.Is(err, types.ErrRunInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "a synchronization run is already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "synchronization failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":     true,
		"run_id":      stats.RunID,
		"epoch":       stats.Epoch,
		"documents":   stats.Indexed,
		"excluded":    stats.Excluded,
		"skipped":     stats.Skipped,
		"deleted":     stats.Deleted,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) indexSinglePath(ctx context.Context, path string) (*mcp.CallToolResult, error) {
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	doc, err := s.indexer.IndexPath(ctx, path)
	switch {
	case errors.Is(err, types.ErrOutsideRoots), errors.Is(err, types.ErrExcluded), errors.Is(err, types.ErrPathNotFound):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed": true,
		"id":      doc.ID,
		"path":    doc.Source.Path.Real,
		"kind":    string(doc.Source.File.Kind),
		"epoch":   doc.Source.Time,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetPath handles the get_path tool invocation
func (s *Server) handleGetPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	path := getStringDefault(args, "path", "")
	if path == "" || !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	id := types.DocumentID(path)
	doc, err := s.backend.Get(ctx, s.indexer.Index(), id)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"id":      id,
			"path":    path,
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if errors.Is(err, types.ErrBackendUnavailable) {
		return nil, newMCPError(ErrorCodeBackendUnavailable, "search backend unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":  true,
		"id":       doc.ID,
		"path":     doc.Source.Path.Real,
		"filename": doc.Source.File.Filename,
		"kind":     string(doc.Source.File.Kind),
		"epoch":    doc.Source.Time,
	}
	if doc.Source.File.Filesize != nil {
		response["size"] = *doc.Source.File.Filesize
	}
	if doc.Source.File.LastModified != nil {
		response["last_modified"] = doc.Source.File.LastModified.Format(time.RFC3339)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// ErrPathNotAbsolute is reported for relative path arguments
var ErrPathNotAbsolute = errors.New("path must be absolute")
