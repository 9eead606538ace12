package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/memorypalace/pkg/processing"
)

var (
	getMemoryToolName    = "get_memory"
	getMemoryDescription = "Fetch one memory by id: its photos, tagged faces, generated story, narration audio URL, and pipeline status."

	listMemoriesToolName    = "list_memories"
	listMemoriesDescription = "List every captured memory with its thumbnail, in the order the processing service reports them."
)

// GetMemoryInput represents the input arguments for the get_memory tool.
type GetMemoryInput struct {
	MemoryID string `json:"memory_id" jsonschema:"the id of the memory to fetch"`
}

// ListMemoriesInput takes no arguments.
type ListMemoriesInput struct{}

// ListMemoriesOutput represents the output of the list_memories tool.
type ListMemoriesOutput struct {
	Memories []processing.SummaryView `json:"memories"`
	Count    int                      `json:"count"`
}

func (s *Server) handleGetMemory(ctx context.Context, _ *mcp.CallToolRequest, input GetMemoryInput) (*mcp.CallToolResult, processing.MemoryView, error) {
	id := strings.TrimSpace(input.MemoryID)
	if id == "" {
		return errorResult("memory_id is required"), processing.MemoryView{}, nil
	}

	m, err := s.config.Service.GetMemory(ctx, id)
	if err != nil {
		s.config.Logger.Error("MCP get_memory failed", "memory_id", id, "error", err)
		return errorResult("Fetching memory failed: %v", err), processing.MemoryView{}, nil
	}

	output := processing.NewMemoryView(*m, s.config.Service.ResolveURL)
	return jsonResult(output), output, nil
}

func (s *Server) handleListMemories(ctx context.Context, _ *mcp.CallToolRequest, _ ListMemoriesInput) (*mcp.CallToolResult, ListMemoriesOutput, error) {
	summaries, err := s.config.Service.ListMemories(ctx)
	if err != nil {
		s.config.Logger.Error("MCP list_memories failed", "error", err)
		return errorResult("Listing memories failed: %v", err), ListMemoriesOutput{}, nil
	}

	views := processing.NewSummaryViews(summaries, s.config.Service.ResolveURL)
	output := ListMemoriesOutput{
		Memories: views,
		Count:    len(views),
	}
	return jsonResult(output), output, nil
}
