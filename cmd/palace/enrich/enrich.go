// Package enrichcmder provides the enrich command.
package enrichcmder

import (
	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/memory"
)

type enrichCommander struct {
	flags commoncmder.ServiceFlags
}

const enrichLongDesc string = `Process a memory and detect faces in its photos.

Running enrich again replaces the previously detected faces. Without an id the
current memory is used.

Examples:
  palace enrich
  palace enrich 9f6c2a`

const enrichShortDesc string = "Process a memory and detect faces"

func NewEnrichCmd() *cobra.Command {
	cmder := &enrichCommander{}

	cmd := &cobra.Command{
		Use:   "enrich [memory-id]",
		Short: enrichShortDesc,
		Long:  enrichLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	return cmd
}

func (c *enrichCommander) run(cmd *cobra.Command, args []string) error {
	rt, err := commoncmder.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.MemoryID(args)
	if err != nil {
		return err
	}

	var snap memory.Memory
	err = cliui.Step(cmd.OutOrStdout(), "Processing and detecting faces", func() error {
		var err error
		snap, err = rt.Orchestrator.RunEnrichment(cmd.Context(), id)
		return err
	})
	if err != nil {
		return err
	}

	commoncmder.PrintMemory(cmd.OutOrStdout(), snap)
	return nil
}
