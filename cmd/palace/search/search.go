// Package searchcmder provides the search command.
package searchcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/config"
	"github.com/papercomputeco/memorypalace/pkg/search"
)

type searchCommander struct {
	flags  commoncmder.ServiceFlags
	person string
	k      uint
}

const searchLongDesc string = `Search memories by what happened in them.

The query is matched against stories and notes. --person narrows results to
memories where that person was tagged.

Examples:
  palace search "birthday at the lake"
  palace search picnic --person Mom -k 3`

const searchShortDesc string = "Search memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	cmd.Flags().StringVar(&cmder.person, "person", "", "Only memories where this person is tagged")
	config.AddUintFlag(cmd, config.Registry, config.FlagSearchK, &cmder.k)
	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command, query string) error {
	rt, err := commoncmder.NewRuntime(cmd, config.FlagSearchK)
	if err != nil {
		return err
	}
	defer rt.Close()

	executor, err := search.NewExecutor(search.Config{
		Service:  rt.Service,
		DefaultK: int(rt.Config.Search.DefaultK),
		Logger:   rt.Logger,
	})
	if err != nil {
		return err
	}

	results, err := executor.Search(cmd.Context(), search.Query{
		Text:   query,
		Person: c.person,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, cliui.DimStyle.Render("No matching memories."))
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%2d. %s  %s\n", i+1, cliui.ValueStyle.Render(r.MemoryID), cliui.DimStyle.Render(cliui.FormatScore(r.Score)))
	}
	return nil
}
