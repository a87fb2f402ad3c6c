package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestContentTool returns the tool definition for ingest_content
func ingestContentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_content",
		Description: "Queue a crawled page for chunking and summarization",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Source URL of the page (unique key; re-ingesting changed text reprocesses it)",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Page title",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Extracted page text",
				},
				"code_snippets": map[string]interface{}{
					"type":        "array",
					"description": "Code blocks extracted from the page, in page order",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"content_type": map[string]interface{}{
					"type":        "string",
					"description": "Kind of content",
					"enum":        []string{"article", "code", "mixed"},
					"default":     "article",
				},
			},
			Required: []string{"url", "text"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report pipeline counts by status and store health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getSummaryTool returns the tool definition for get_summary
func getSummaryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_summary",
		Description: "Fetch the final summary for a URL",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "URL the content was ingested under",
				},
			},
			Required: []string{"url"},
		},
	}
}

// listSummariesTool returns the tool definition for list_summaries
func listSummariesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_summaries",
		Description: "List the most recently updated final summaries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of summaries to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

// processBatchTool returns the tool definition for process_batch
func processBatchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "process_batch",
		Description: "Run one chunk batch and one summarize batch immediately",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
