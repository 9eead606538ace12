// Package submitcmder provides the submit command for uploading a new memory.
package submitcmder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/dotdir"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/pipeline"
	"github.com/papercomputeco/memorypalace/pkg/staging"
)

type submitCommander struct {
	flags commoncmder.ServiceFlags

	video    string
	audio    string
	note     string
	noEnrich bool
}

const submitLongDesc string = `Upload photos, and optionally a video and a voice clip, as one memory.

Files are checked locally before anything is sent: each photo must be an
image, --video a video, and --audio an audio clip. After upload the memory is
processed and faces are detected unless --no-enrich is given.

The new memory becomes the current memory, so tag, story, show, and play can
be run without an id.

Examples:
  palace submit beach.jpg cake.jpg
  palace submit beach.jpg --audio memo.m4a --note "Grandma's 80th"
  palace submit --video party.mp4 --no-enrich`

const submitShortDesc string = "Upload a new memory"

func NewSubmitCmd() *cobra.Command {
	cmder := &submitCommander{}

	cmd := &cobra.Command{
		Use:   "submit [photos...]",
		Short: submitShortDesc,
		Long:  submitLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	cmd.Flags().StringVar(&cmder.video, "video", "", "Video file to include")
	cmd.Flags().StringVar(&cmder.audio, "audio", "", "Voice clip to include")
	cmd.Flags().StringVar(&cmder.note, "note", "", "Text note sent with the media")
	cmd.Flags().BoolVar(&cmder.noEnrich, "no-enrich", false, "Upload only; skip processing and face detection")

	return cmd
}

func (c *submitCommander) run(cmd *cobra.Command, photos []string) error {
	media, err := c.stage(photos)
	if err != nil {
		return err
	}

	rt, err := commoncmder.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	token := uuid.NewString()

	var snap memory.Memory
	err = cliui.Step(out, fmt.Sprintf("Uploading %d file(s)", media.Count()), func() error {
		var err error
		snap, err = rt.Orchestrator.Submit(ctx, media, pipeline.WithSubmissionToken(token))
		return err
	})
	if err != nil {
		return err
	}

	if err := dotdir.NewManager().SaveCurrent(&dotdir.CurrentMemory{
		MemoryID:    snap.ID,
		SubmittedAt: time.Now().UTC(),
	}, rt.ConfigDir); err != nil {
		rt.Logger.Warn("could not save current memory", "memory_id", snap.ID, "error", err)
	}

	if !c.noEnrich {
		err = cliui.Step(out, "Processing and detecting faces", func() error {
			var err error
			snap, err = rt.Orchestrator.RunEnrichment(ctx, snap.ID)
			return err
		})
		if err != nil {
			if cached, ok := rt.Orchestrator.Snapshot(snap.ID); ok {
				commoncmder.PrintMemory(out, cached)
			}
			return fmt.Errorf("memory %s was uploaded; retry with palace enrich: %w", snap.ID, err)
		}
	}

	commoncmder.PrintMemory(out, snap)
	return nil
}

func (c *submitCommander) stage(photos []string) (memory.Media, error) {
	stager := staging.New()
	if err := stager.AddPhotos(photos...); err != nil {
		return memory.Media{}, err
	}
	if c.video != "" {
		if err := stager.SetVideo(c.video); err != nil {
			return memory.Media{}, err
		}
	}
	if c.audio != "" {
		if err := stager.SetAudio(c.audio); err != nil {
			return memory.Media{}, err
		}
	}
	stager.SetNote(c.note)

	media := stager.Media()
	if media.IsEmpty() {
		return memory.Media{}, &memory.ValidationError{Field: "media", Reason: "give at least one photo, --video, or --audio"}
	}
	return media, nil
}
