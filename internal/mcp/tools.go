package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/crawldigest/internal/pipeline"
	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeBatchInProgress = -32002 // Another batch is already running
)

// handleIngestContent handles the ingest_content tool invocation
func (s *Server) handleIngestContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	kind, err := types.ParseContentKind(getStringDefault(args, "content_type", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid content_type", map[string]interface{}{
			"param":   "content_type",
			"allowed": []string{"article", "code", "mixed"},
		})
	}

	doc := types.Document{
		URL:          getStringDefault(args, "url", ""),
		Title:        getStringDefault(args, "title", ""),
		Text:         getStringDefault(args, "text", ""),
		CodeSnippets: getStringSlice(args, "code_snippets"),
		Kind:         kind,
	}

	item, err := pipeline.Ingest(ctx, s.storage, doc)
	switch {
	case errors.Is(err, types.ErrMissingURL):
		return nil, newMCPError(ErrorCodeInvalidParams, "url parameter is required", map[string]interface{}{
			"param":  "url",
			"reason": err.Error(),
		})
	case errors.Is(err, types.ErrEmptyContent):
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"ingested": true,
		"id":       item.ID,
		"url":      item.URL,
		"status":   string(item.Status),
		"tokens":   item.TotalTokens,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(StatusResponse(status))), nil
}

// handleGetSummary handles the get_summary tool invocation
func (s *Server) handleGetSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	url, ok := args["url"].(string)
	if !ok || url == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "url parameter is required", map[string]interface{}{
			"param":  "url",
			"reason": "missing or empty",
		})
	}

	summary, err := s.storage.GetSummaryByURL(ctx, url)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"summarized": false,
			"url":        url,
			"message":    "No summary yet. Ingest the page with ingest_content and let the pipeline run.",
		}
		if item, itemErr := s.storage.GetContentItemByURL(ctx, url); itemErr == nil {
			response["status"] = string(item.Status)
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get summary", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := SummaryResponse(summary)
	response["summarized"] = true
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListSummaries handles the list_summaries tool invocation
func (s *Server) handleListSummaries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := getIntDefault(args, "limit", 20)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	summaries, err := s.storage.ListSummaries(ctx, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list summaries", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, map[string]interface{}{
			"url":        sum.URL,
			"title":      sum.Title,
			"summary":    sum.Summary,
			"category":   sum.Category,
			"is_partial": sum.IsPartial,
			"updated_at": sum.UpdatedAt.Format(time.RFC3339),
		})
	}

	response := map[string]interface{}{
		"count":     len(items),
		"summaries": items,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleProcessBatch handles the process_batch tool invocation
func (s *Server) handleProcessBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chunked, summarized, err := s.pipeline.RunOnce(ctx)
	if errors.Is(err, pipeline.ErrBusy) {
		return nil, newMCPError(ErrorCodeBatchInProgress, "a batch is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "batch failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"chunk":     batchResponse(chunked),
		"summarize": batchResponse(summarized),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// StatusResponse renders pipeline counts for tool and CLI output
func StatusResponse(status *storage.PipelineStatus) map[string]interface{} {
	items := make(map[string]int, len(status.Items))
	for k, v := range status.Items {
		items[string(k)] = v
	}
	groups := make(map[string]int, len(status.Groups))
	for k, v := range status.Groups {
		groups[string(k)] = v
	}

	return map[string]interface{}{
		"items":  items,
		"groups": groups,
		"statistics": map[string]interface{}{
			"total_items":      status.TotalItems,
			"total_tokens":     status.TotalTokens,
			"chunks_count":     status.ChunksCount,
			"chunk_tokens":     status.ChunkTokens,
			"pending_partials": status.PendingPartials,
			"summaries_count":  status.SummariesCount,
			"claimed_items":    status.ClaimedItems,
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"schema_version":      status.Health.SchemaVersion,
		},
	}
}

// SummaryResponse renders a final summary for tool and CLI output
func SummaryResponse(sum *storage.Summary) map[string]interface{} {
	response := map[string]interface{}{
		"url":        sum.URL,
		"title":      sum.Title,
		"summary":    sum.Summary,
		"key_points": nonNil(sum.KeyPoints),
		"category":   sum.Category,
		"sentiment":  sum.Sentiment,
		"kind":       string(sum.Kind),
		"is_partial": sum.IsPartial,
		"updated_at": sum.UpdatedAt.Format(time.RFC3339),
	}
	if len(sum.CodeSnippets) > 0 {
		response["code_snippets"] = sum.CodeSnippets
	}
	return response
}

func batchResponse(r *pipeline.BatchResult) map[string]interface{} {
	response := map[string]interface{}{
		"claimed":     r.Claimed,
		"succeeded":   r.Succeeded,
		"failed":      r.Failed,
		"deferred":    r.Deferred,
		"duration_ms": r.Duration.Milliseconds(),
	}
	if n := len(r.Errors); n > 0 {
		if n > 5 {
			response["errors"] = r.Errors[:5]
			response["error_count"] = n
		} else {
			response["errors"] = r.Errors
		}
	}
	return response
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
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

// getStringSlice extracts a string array parameter, skipping non-string entries
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
