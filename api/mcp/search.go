package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/memorypalace/pkg/processing"
	"github.com/papercomputeco/memorypalace/pkg/search"
)

var (
	searchToolName    = "search_memories"
	searchDescription = "Search the caregiver's captured memories by meaning. Optionally restrict to memories that include a tagged person. Returns memory ids ranked by relevance; use get_memory to read one."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"what to look for, e.g. 'birthday at the lake'"`
	Person string `json:"person,omitempty" jsonschema:"only return memories with a face tagged with this name"`
	K      int    `json:"k,omitempty" jsonschema:"number of results to return (default: 6)"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string                        `json:"query"`
	Results []processing.SearchResultView `json:"results"`
	Count   int                           `json:"count"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP search request",
		"query", input.Query,
		"person", input.Person,
		"k", input.K,
	)

	results, err := s.config.Searcher.Search(ctx, search.Query{
		Text:   input.Query,
		Person: input.Person,
		K:      input.K,
	})
	if err != nil {
		logger.Error("MCP search failed", "error", err)
		return errorResult("Search failed: %v", err), SearchOutput{}, nil
	}

	views := processing.NewSearchResultViews(results, s.config.Service.ResolveURL)
	output := SearchOutput{
		Query:   input.Query,
		Results: views,
		Count:   len(views),
	}

	return jsonResult(output), output, nil
}
