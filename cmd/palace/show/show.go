// Package showcmder provides the show command.
package showcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/memory"
)

type showCommander struct {
	flags commoncmder.ServiceFlags
}

const showLongDesc string = `Fetch the latest state of a memory and print it.

Shows the lifecycle status, photos, detected faces and their labels, the story,
and the narration link. Without an id the current memory is used.

Examples:
  palace show
  palace show 9f6c2a`

const showShortDesc string = "Show a memory"

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show [memory-id]",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, args []string) error {
	rt, err := commoncmder.NewRuntime(cmd)
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

	out := cmd.OutOrStdout()
	commoncmder.PrintMemory(out, snap)
	printImages(out, snap, rt.Service.ResolveURL)

	if story, ok := snap.Story.Get(); ok {
		fmt.Fprint(out, cliui.RenderStory("Story", story))
	}
	return nil
}

func printImages(w io.Writer, m memory.Memory, resolve func(string) string) {
	if len(m.Images) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s\n", cliui.KeyStyle.Render("Photos"))
	for _, ref := range m.Images {
		fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(resolve(ref)))
	}
	fmt.Fprintln(w)
}
