package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/memorypalace/pkg/logger"
)

// Server is the companion API server.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config) (*Server, error) {
	if config.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if config.Service == nil {
		return nil, errors.New("processing service is required")
	}
	if config.Searcher == nil {
		return nil, errors.New("searcher is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: logger.OrNop(config.Logger),
		app:    app,
	}

	app.Use(s.logRequests)

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/memories", s.handleSubmit)
	v1.Get("/memories", s.handleListMemories)
	v1.Get("/memories/:id", s.handleGetMemory)
	v1.Post("/memories/:id/enrich", s.handleEnrich)
	v1.Post("/memories/:id/tags", s.handleTagFaces)
	v1.Post("/memories/:id/story", s.handleStory)
	v1.Post("/memories/:id/refresh", s.handleRefresh)
	v1.Post("/memories/:id/embed", s.handleEmbed)
	v1.Get("/search", s.handleSearch)

	if config.Playback != nil {
		v1.Get("/playback", s.handlePlaybackState)
		v1.Post("/playback/stop", s.handlePlaybackStop)
		v1.Delete("/playback", s.handlePlaybackRelease)
		v1.Post("/playback/:id", s.handlePlay)
	}

	if config.MCP != nil {
		mcpHandler := adaptor.HTTPHandler(config.MCP)
		app.All("/mcp", mcpHandler)
		app.All("/mcp/*", mcpHandler)
	}

	if config.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(
			config.Metrics.Registry(),
			promhttp.HandlerOpts{Registry: config.Metrics.Registry()},
		)))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	err := c.Next()
	s.logger.Debug("api request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
	)
	return err
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
