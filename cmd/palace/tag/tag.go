// Package tagcmder provides the tag command for labeling detected faces.
package tagcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/memory"
)

type tagCommander struct {
	flags  commoncmder.ServiceFlags
	memory string
}

const tagLongDesc string = `Label detected faces with the names of the people in them.

Each argument is a crop=label pair, using the crop file names shown by
palace show. Blank labels are ignored, and if every label is blank nothing is
sent. The memory must have had faces detected first.

Examples:
  palace tag face_0.jpg=Mom face_1.jpg="Uncle Ray"
  palace tag --memory 9f6c2a face_2.jpg=Grandpa`

const tagShortDesc string = "Label detected faces"

func NewTagCmd() *cobra.Command {
	cmder := &tagCommander{}

	cmd := &cobra.Command{
		Use:   "tag crop=label...",
		Short: tagShortDesc,
		Long:  tagLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	cmd.Flags().StringVarP(&cmder.memory, "memory", "m", "", "Memory id (defaults to the current memory)")
	return cmd
}

func (c *tagCommander) run(cmd *cobra.Command, args []string) error {
	tags, err := ParseTags(args)
	if err != nil {
		return err
	}
	if !hasLabel(tags) {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cliui.DimStyle.Render("No labels to send."))
		return nil
	}

	rt, err := commoncmder.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var explicit []string
	if c.memory != "" {
		explicit = []string{c.memory}
	}
	id, err := rt.MemoryID(explicit)
	if err != nil {
		return err
	}

	var snap memory.Memory
	err = cliui.Step(cmd.OutOrStdout(), fmt.Sprintf("Tagging %d face(s)", len(tags)), func() error {
		var err error
		snap, err = rt.Orchestrator.TagFaces(cmd.Context(), id, tags)
		return err
	})
	if err != nil {
		return err
	}

	commoncmder.PrintMemory(cmd.OutOrStdout(), snap)
	return nil
}

// ParseTags turns crop=label arguments into face tags. Labels are kept as
// given; blank ones are filtered by the pipeline.
func ParseTags(args []string) ([]memory.FaceTag, error) {
	tags := make([]memory.FaceTag, 0, len(args))
	for _, arg := range args {
		crop, label, ok := strings.Cut(arg, "=")
		crop = strings.TrimSpace(crop)
		if !ok || crop == "" {
			return nil, &memory.ValidationError{Field: "tag", Reason: fmt.Sprintf("%q is not crop=label", arg)}
		}
		tags = append(tags, memory.FaceTag{CropFile: crop, Label: label})
	}
	return tags, nil
}

func hasLabel(tags []memory.FaceTag) bool {
	for _, t := range tags {
		if strings.TrimSpace(t.Label) != "" {
			return true
		}
	}
	return false
}
