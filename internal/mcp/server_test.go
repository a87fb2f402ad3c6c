package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/crawldigest/internal/chunker"
	"github.com/dshills/crawldigest/internal/pipeline"
	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/internal/summarizer"
)

func setupServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	local, err := summarizer.NewLocalProvider(nil)
	require.NoError(t, err)

	cfg := pipeline.DefaultConfig()
	cfg.Chunking = chunker.Config{MaxTokensPerChunk: 50, MinTokensPerChunk: 10, OverlapTokens: 5}

	server, err := NewServer(store, pipeline.New(store, local, cfg))
	require.NoError(t, err)
	return server
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// decodeResult unmarshals the text content of a tool result
func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok, "expected *MCPError, got %T", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func longText(paragraphs int) string {
	paras := make([]string, paragraphs)
	for i := range paras {
		paras[i] = fmt.Sprintf("Paragraph %d describes the crawler behaviour in enough words to fill the chunk.", i+1)
	}
	return strings.Join(paras, "\n\n")
}

func TestNewServer(t *testing.T) {
	t.Run("requires storage", func(t *testing.T) {
		_, err := NewServer(nil, nil)
		require.Error(t, err)
	})

	t.Run("pipeline is optional", func(t *testing.T) {
		store, err := storage.NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		defer store.Close()

		server, err := NewServer(store, nil)
		require.NoError(t, err)
		assert.Nil(t, server.pipeline)
		assert.NotNil(t, server.mcp)
	})
}

func TestHandleIngestContent(t *testing.T) {
	ctx := context.Background()
	server := setupServer(t)

	t.Run("valid document", func(t *testing.T) {
		result, err := server.handleIngestContent(ctx, callRequest("ingest_content", map[string]interface{}{
			"url":           "https://example.com/a",
			"title":         "A",
			"text":          "Some crawled text.",
			"code_snippets": []interface{}{"fmt.Println(1)", 42},
			"content_type":  "mixed",
		}))
		require.NoError(t, err)

		out := decodeResult(t, result)
		assert.Equal(t, true, out["ingested"])
		assert.Equal(t, "pending", out["status"])
		assert.Equal(t, "https://example.com/a", out["url"])

		item, err := server.storage.GetContentItemByURL(ctx, "https://example.com/a")
		require.NoError(t, err)
		assert.Equal(t, []string{"fmt.Println(1)"}, item.CodeSnippets)
		assert.EqualValues(t, "mixed", item.Kind)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := server.handleIngestContent(ctx, callRequest("ingest_content", map[string]interface{}{
			"text": "body",
		}))
		mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
		assert.Contains(t, mcpErr.Message, "url")
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := server.handleIngestContent(ctx, callRequest("ingest_content", map[string]interface{}{
			"url":  "https://example.com/empty",
			"text": "   ",
		}))
		mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
		assert.Contains(t, mcpErr.Message, "text")
	})

	t.Run("unknown content type", func(t *testing.T) {
		_, err := server.handleIngestContent(ctx, callRequest("ingest_content", map[string]interface{}{
			"url":          "https://example.com/b",
			"text":         "body",
			"content_type": "video",
		}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = "not a map"
		_, err := server.handleIngestContent(ctx, req)
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleGetSummary_Lifecycle(t *testing.T) {
	ctx := context.Background()
	server := setupServer(t)
	url := "https://example.com/long"

	_, err := server.handleIngestContent(ctx, callRequest("ingest_content", map[string]interface{}{
		"url":   url,
		"title": "Long page",
		"text":  longText(8),
	}))
	require.NoError(t, err)

	// Before processing there is no summary, only the item status
	result, err := server.handleGetSummary(ctx, callRequest("get_summary", map[string]interface{}{"url": url}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, false, out["summarized"])
	assert.Equal(t, "pending", out["status"])

	result, err = server.handleProcessBatch(ctx, callRequest("process_batch", nil))
	require.NoError(t, err)
	batch := decodeResult(t, result)
	chunk := batch["chunk"].(map[string]interface{})
	summarize := batch["summarize"].(map[string]interface{})
	assert.EqualValues(t, 1, chunk["succeeded"])
	assert.EqualValues(t, 1, summarize["succeeded"])

	result, err = server.handleGetSummary(ctx, callRequest("get_summary", map[string]interface{}{"url": url}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.Equal(t, true, out["summarized"])
	assert.Equal(t, "Long page", out["title"])
	assert.NotEmpty(t, out["summary"])
	assert.NotEmpty(t, out["key_points"])
	assert.Equal(t, false, out["is_partial"])

	result, err = server.handleListSummaries(ctx, callRequest("list_summaries", map[string]interface{}{"limit": float64(5)}))
	require.NoError(t, err)
	list := decodeResult(t, result)
	assert.EqualValues(t, 1, list["count"])
}

func TestHandleGetSummary_MissingURL(t *testing.T) {
	server := setupServer(t)

	_, err := server.handleGetSummary(context.Background(), callRequest("get_summary", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleListSummaries_LimitBounds(t *testing.T) {
	server := setupServer(t)

	for _, limit := range []float64{0, 101} {
		_, err := server.handleListSummaries(context.Background(),
			callRequest("list_summaries", map[string]interface{}{"limit": limit}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	}

	result, err := server.handleListSummaries(context.Background(), callRequest("list_summaries", nil))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.EqualValues(t, 0, out["count"])
}

func TestHandleGetStatus(t *testing.T) {
	ctx := context.Background()
	server := setupServer(t)

	for i := 0; i < 3; i++ {
		_, err := server.handleIngestContent(ctx, callRequest("ingest_content", map[string]interface{}{
			"url":  fmt.Sprintf("https://example.com/%d", i),
			"text": longText(2),
		}))
		require.NoError(t, err)
	}

	result, err := server.handleGetStatus(ctx, callRequest("get_status", nil))
	require.NoError(t, err)
	out := decodeResult(t, result)

	items := out["items"].(map[string]interface{})
	assert.EqualValues(t, 3, items["pending"])

	stats := out["statistics"].(map[string]interface{})
	assert.EqualValues(t, 3, stats["total_items"])

	health := out["health"].(map[string]interface{})
	assert.Equal(t, true, health["database_accessible"])
	assert.Equal(t, storage.CurrentSchemaVersion, health["schema_version"])
}

func TestBatchResponse_TruncatesErrors(t *testing.T) {
	r := &pipeline.BatchResult{Claimed: 7, Failed: 7, Duration: 1500 * time.Millisecond}
	for i := 0; i < 7; i++ {
		r.Errors = append(r.Errors, fmt.Sprintf("item %d failed", i))
	}

	out := batchResponse(r)
	assert.Len(t, out["errors"], 5)
	assert.Equal(t, 7, out["error_count"])
	assert.Equal(t, int64(1500), out["duration_ms"])
}
