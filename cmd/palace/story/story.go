// Package storycmder provides the story command.
package storycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/memory"
)

type storyCommander struct {
	flags commoncmder.ServiceFlags
}

const storyLongDesc string = `Write a story for a memory and narrate it.

A new story is generated on every run, replacing any earlier one, and is then
narrated. If narration fails the new story is still kept and shown.

Examples:
  palace story
  palace story 9f6c2a`

const storyShortDesc string = "Generate and narrate a memory's story"

func NewStoryCmd() *cobra.Command {
	cmder := &storyCommander{}

	cmd := &cobra.Command{
		Use:   "story [memory-id]",
		Short: storyShortDesc,
		Long:  storyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	return cmd
}

func (c *storyCommander) run(cmd *cobra.Command, args []string) error {
	rt, err := commoncmder.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.MemoryID(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	var snap memory.Memory
	stepErr := cliui.Step(out, "Writing and narrating the story", func() error {
		var err error
		snap, err = rt.Orchestrator.GenerateAndNarrate(cmd.Context(), id)
		return err
	})
	if stepErr != nil {
		cached, ok := rt.Orchestrator.Snapshot(id)
		if !ok || !cached.Story.IsSet() {
			return stepErr
		}
		snap = cached
	}

	story, _ := snap.Story.Get()
	fmt.Fprint(out, cliui.RenderStory(fmt.Sprintf("Memory %s", snap.ID), story))

	if narration, ok := snap.NarrationAudio.Get(); ok {
		fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Narration:"), rt.Service.ResolveURL(narration))
	}

	return stepErr
}
