// Package mcp provides an MCP (Model Context Protocol) server exposing the
// memory collection to assistants: search, fetch, and list.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/memorypalace/pkg/processing"
	"github.com/papercomputeco/memorypalace/pkg/search"
	"github.com/papercomputeco/memorypalace/pkg/utils"
)

type Config struct {
	// Service fetches and lists memories
	Service processing.Service

	// Searcher runs search_memories queries
	Searcher *search.Executor

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "memorypalace",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Service == nil {
			return nil, errors.New("processing service is required")
		}
		if c.Searcher == nil {
			return nil, errors.New("searcher is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        getMemoryToolName,
			Description: getMemoryDescription,
		}, s.handleGetMemory)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        listMemoriesToolName,
			Description: listMemoriesDescription,
		}, s.handleListMemories)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
