// Package palacecmder
package palacecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/memorypalace/cmd/palace/config"
	enrichcmder "github.com/papercomputeco/memorypalace/cmd/palace/enrich"
	listcmder "github.com/papercomputeco/memorypalace/cmd/palace/list"
	playcmder "github.com/papercomputeco/memorypalace/cmd/palace/play"
	reindexcmder "github.com/papercomputeco/memorypalace/cmd/palace/reindex"
	searchcmder "github.com/papercomputeco/memorypalace/cmd/palace/search"
	servecmder "github.com/papercomputeco/memorypalace/cmd/palace/serve"
	showcmder "github.com/papercomputeco/memorypalace/cmd/palace/show"
	storycmder "github.com/papercomputeco/memorypalace/cmd/palace/story"
	submitcmder "github.com/papercomputeco/memorypalace/cmd/palace/submit"
	tagcmder "github.com/papercomputeco/memorypalace/cmd/palace/tag"
	versioncmder "github.com/papercomputeco/memorypalace/cmd/version"
)

const palaceLongDesc string = `Palace turns photos, videos, and voice notes into narrated memories.

Media is uploaded to a processing service which detects faces, writes a
story, and narrates it. Palace drives that pipeline one step at a time:
  palace submit       Upload a new memory
  palace enrich       Process it and detect faces
  palace tag          Name the people in it
  palace story        Write and narrate its story
  palace play         Listen to the narration
  palace search       Find memories by what happened or who was there

Run the companion API for screens and assistants with:
  palace serve`

const palaceShortDesc string = "Palace - Narrated Memories"

func NewPalaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "palace",
		Short:        palaceShortDesc,
		Long:         palaceLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .palace/ config directory")

	// Add subcommands
	cmd.AddCommand(submitcmder.NewSubmitCmd())
	cmd.AddCommand(enrichcmder.NewEnrichCmd())
	cmd.AddCommand(tagcmder.NewTagCmd())
	cmd.AddCommand(storycmder.NewStoryCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(listcmder.NewListCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(playcmder.NewPlayCmd())
	cmd.AddCommand(reindexcmder.NewReindexCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
