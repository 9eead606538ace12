// Package listcmder provides the list command.
package listcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/dotdir"
)

type listCommander struct {
	flags commoncmder.ServiceFlags
}

const listLongDesc string = `List every memory known to the processing service, newest last.

The current memory is marked with an arrow.`

const listShortDesc string = "List memories"

func NewListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   listShortDesc,
		Long:    listLongDesc,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	return cmd
}

func (c *listCommander) run(cmd *cobra.Command) error {
	rt, err := commoncmder.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	summaries, err := rt.Service.ListMemories(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, cliui.DimStyle.Render("No memories yet. Add one with palace submit."))
		return nil
	}

	current := ""
	if cur, err := dotdir.NewManager().LoadCurrent(rt.ConfigDir); err == nil && cur != nil {
		current = cur.MemoryID
	}

	for _, s := range summaries {
		marker := " "
		if s.ID == current {
			marker = cliui.StepStyle.Render("→")
		}
		created := ""
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "%s %s  %s\n", marker, cliui.ValueStyle.Render(s.ID), cliui.DimStyle.Render(created))
	}
	return nil
}
