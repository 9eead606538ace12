// Package api provides the companion HTTP API that lets screens drive the
// memory pipeline, search, and narration playback.
package api

import (
	"log/slog"
	"net/http"

	"github.com/papercomputeco/memorypalace/pkg/metrics"
	"github.com/papercomputeco/memorypalace/pkg/pipeline"
	"github.com/papercomputeco/memorypalace/pkg/playback"
	"github.com/papercomputeco/memorypalace/pkg/processing"
	"github.com/papercomputeco/memorypalace/pkg/search"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// Orchestrator drives memories through the pipeline. Required.
	Orchestrator *pipeline.Orchestrator

	// Service lists memories and resolves refs. Required.
	Service processing.Service

	// Searcher runs search queries. Required.
	Searcher *search.Executor

	// Playback enables the /v1/playback routes when set.
	Playback *playback.Controller

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	// Metrics is exposed at /metrics when set.
	Metrics *metrics.Recorder

	Logger *slog.Logger
}
