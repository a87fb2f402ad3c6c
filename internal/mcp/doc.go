// Package mcp implements the Model Context Protocol (MCP) server for crawldigest.
//
// The server lets an agent feed crawled pages into the pipeline and read the
// results back:
//   - ingest_content: queue a page for chunking and summarization
//   - get_status: pipeline counts per status and store health
//   - get_summary: the final summary for one url
//   - list_summaries: recently updated summaries
//   - process_batch: run one chunk batch and one summarize batch now
//
// # Protocol Overview
//
// MCP is JSON-RPC 2.0 over stdio. Stdout carries protocol messages only, so
// all logging goes to stderr.
//
//	crawldigest run --mcp
//
// # Tool: ingest_content
//
//	Request:
//	{
//	  "name": "ingest_content",
//	  "arguments": {
//	    "url": "https://example.com/post",
//	    "title": "A post",
//	    "text": "Extracted page text...",
//	    "code_snippets": ["go func() {}()"],
//	    "content_type": "mixed"
//	  }
//	}
//
//	Response:
//	{
//	  "ingested": true,
//	  "id": 12,
//	  "url": "https://example.com/post",
//	  "status": "pending",
//	  "tokens": 734
//	}
//
// # Tool: get_summary
//
//	Response:
//	{
//	  "summarized": true,
//	  "url": "https://example.com/post",
//	  "summary": "...",
//	  "key_points": ["..."],
//	  "category": "programming",
//	  "sentiment": "neutral",
//	  "is_partial": false
//	}
//
// A url that has not been summarized yet returns "summarized": false and the
// item's current status when it exists.
//
// # Error Handling
//
// Handler errors are *MCPError values carrying a JSON-RPC code:
//   - -32602: Invalid params
//   - -32603: Internal error (database, summarizer)
//   - -32002: A batch is already running
package mcp
