package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/crawldigest/internal/pipeline"
	"github.com/dshills/crawldigest/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "crawldigest"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	pipeline *pipeline.Pipeline
}

// NewServer creates a new MCP server over store. The caller owns store.
// When p is nil the process_batch tool is not offered.
func NewServer(store storage.Storage, p *pipeline.Pipeline) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		pipeline: p,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(ingestContentTool(), s.handleIngestContent)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(getSummaryTool(), s.handleGetSummary)
	s.mcp.AddTool(listSummariesTool(), s.handleListSummaries)

	if s.pipeline != nil {
		s.mcp.AddTool(processBatchTool(), s.handleProcessBatch)
	}

	return nil
}
