// Package playcmder provides the play command for listening to a memory's
// narration.
package playcmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/config"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/playback"
	"github.com/papercomputeco/memorypalace/pkg/playback/execplayer"
)

type playCommander struct {
	flags commoncmder.ServiceFlags

	player     string
	playerArgs string
}

const playLongDesc string = `Play the narration of a memory through a local audio player.

The narration is fetched from the processing service and handed to the
configured player (ffplay by default). Press Ctrl+C to stop. Without an id the
current memory is used.

Examples:
  palace play
  palace play 9f6c2a --player mpv --player-args "--no-video"`

const playShortDesc string = "Play a memory's narration"

const pollInterval = 200 * time.Millisecond

func NewPlayCmd() *cobra.Command {
	cmder := &playCommander{}

	cmd := &cobra.Command{
		Use:   "play [memory-id]",
		Short: playShortDesc,
		Long:  playLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	config.AddStringFlag(cmd, config.Registry, config.FlagPlayCommand, &cmder.player)
	config.AddStringFlag(cmd, config.Registry, config.FlagPlayArgs, &cmder.playerArgs)
	return cmd
}

func (c *playCommander) run(cmd *cobra.Command, args []string) error {
	rt, err := commoncmder.NewRuntime(cmd, config.FlagPlayCommand, config.FlagPlayArgs)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.MemoryID(args)
	if err != nil {
		return err
	}

	snap, err := rt.Orchestrator.Refresh(cmd.Context(), id)
	if err != nil {
		return err
	}
	ref, ok := snap.NarrationAudio.Get()
	if !ok {
		return &memory.ValidationError{Field: "audio", Reason: fmt.Sprintf("memory %s has no narration yet; run palace story first", id)}
	}

	controller, err := playback.NewController(playback.Config{
		Loader: execplayer.New(execplayer.Config{
			Command: rt.Config.Playback.Command,
			Args:    rt.Config.Playback.ArgList(),
			Logger:  rt.Logger,
		}),
		Resolve: rt.Service.ResolveURL,
		Metrics: rt.Metrics,
		Logger:  rt.Logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if err := cliui.Step(out, "Loading narration", func() error {
		return controller.Play(ctx, ref)
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("Playing. Press Ctrl+C to stop."))
	waitErr := wait(ctx, controller)

	// The signal context may already be done.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
	defer cancel()
	if errors.Is(waitErr, context.Canceled) {
		if err := controller.Stop(releaseCtx); err != nil {
			rt.Logger.Warn("stopping playback", "error", err)
		}
	}
	return controller.Release(releaseCtx)
}

func wait(ctx context.Context, controller *playback.Controller) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !controller.IsPlaying() {
				return nil
			}
		}
	}
}
