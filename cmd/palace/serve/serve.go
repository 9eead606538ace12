// Package servecmder provides the serve command, which runs the companion API
// with the MCP endpoint and metrics mounted alongside it.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/memorypalace/api"
	mcpserver "github.com/papercomputeco/memorypalace/api/mcp"
	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/config"
	"github.com/papercomputeco/memorypalace/pkg/playback"
	"github.com/papercomputeco/memorypalace/pkg/playback/execplayer"
	"github.com/papercomputeco/memorypalace/pkg/search"
)

type serveCommander struct {
	flags commoncmder.ServiceFlags

	listen     string
	player     string
	playerArgs string
	noPlayback bool
	noMCP      bool
}

const serveLongDesc string = `Run the companion API.

The API lets screens and assistants drive the memory pipeline over HTTP:
submit, enrich, tag, story, search, and narration playback on this machine.
An MCP endpoint is mounted at /mcp for agents and Prometheus metrics at
/metrics.

Examples:
  palace serve
  palace serve --listen :9000 --no-playback
  palace serve --log-file ~/.palace/serve.log
  palace serve --events-provider kafka --events-brokers kafka:9092`

const serveShortDesc string = "Run the companion API"

const shutdownTimeout = 10 * time.Second

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	config.AddStringFlag(cmd, config.Registry, config.FlagServeListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Registry, config.FlagPlayCommand, &cmder.player)
	config.AddStringFlag(cmd, config.Registry, config.FlagPlayArgs, &cmder.playerArgs)
	cmd.Flags().BoolVar(&cmder.noPlayback, "no-playback", false, "Disable the playback routes")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Disable the MCP endpoint")
	cmd.Flags().String(commoncmder.LogFileFlag, "", "Also write logs to this file as JSON")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	rt, err := commoncmder.NewRuntime(cmd,
		config.FlagServeListen,
		config.FlagPlayCommand,
		config.FlagPlayArgs,
		config.FlagSearchK,
	)
	if err != nil {
		return err
	}
	defer rt.Close()

	log := rt.Logger

	healthCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	if err := rt.Service.Health(healthCtx); err != nil {
		log.Warn("processing service is not reachable yet",
			"api_target", rt.Config.Client.APITarget,
			"error", err,
		)
	}
	cancel()

	searcher, err := search.NewExecutor(search.Config{
		Service:  rt.Service,
		DefaultK: int(rt.Config.Search.DefaultK),
		Logger:   log,
	})
	if err != nil {
		return err
	}

	apiConfig := api.Config{
		ListenAddr:   rt.Config.Serve.Listen,
		Orchestrator: rt.Orchestrator,
		Service:      rt.Service,
		Searcher:     searcher,
		Metrics:      rt.Metrics,
		Logger:       log,
	}

	if !c.noPlayback {
		controller, err := playback.NewController(playback.Config{
			Loader: execplayer.New(execplayer.Config{
				Command: rt.Config.Playback.Command,
				Args:    rt.Config.Playback.ArgList(),
				Logger:  log,
			}),
			Resolve: rt.Service.ResolveURL,
			Metrics: rt.Metrics,
			Logger:  log,
		})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := controller.Release(ctx); err != nil {
				log.Warn("releasing playback", "error", err)
			}
		}()
		apiConfig.Playback = controller
	}

	if !c.noMCP {
		mcpServer, err := mcpserver.NewServer(mcpserver.Config{
			Service:  rt.Service,
			Searcher: searcher,
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		apiConfig.MCP = mcpServer.Handler()
	}

	server, err := api.NewServer(apiConfig)
	if err != nil {
		return err
	}

	log.Info("starting companion API",
		"listen", rt.Config.Serve.Listen,
		"api_target", rt.Config.Client.APITarget,
		"playback", apiConfig.Playback != nil,
		"mcp", apiConfig.MCP != nil,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
