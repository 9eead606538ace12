package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/pipeline"
	"github.com/papercomputeco/memorypalace/pkg/processing"
	"github.com/papercomputeco/memorypalace/pkg/staging"
)

// SubmitRequest names local files to stage and submit as one memory.
type SubmitRequest struct {
	Photos []string `json:"photos"`
	Video  string   `json:"video,omitempty"`
	Audio  string   `json:"audio,omitempty"`
	Note   string   `json:"note,omitempty"`

	// Token makes the submission at-most-once across retries.
	Token string `json:"token,omitempty"`

	// Enrich runs process and face detection right after upload. Defaults
	// to true.
	Enrich *bool `json:"enrich,omitempty"`
}

// ListResponse is the body of GET /v1/memories.
type ListResponse struct {
	Count    int                      `json:"count"`
	Memories []processing.SummaryView `json:"memories"`
}

func (s *Server) view(m memory.Memory) processing.MemoryView {
	return processing.NewMemoryView(m, s.config.Service.ResolveURL)
}

// handleSubmit stages the named files, uploads them, and optionally runs
// enrichment.
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	media, err := stage(req)
	if err != nil {
		return s.writeError(c, err)
	}

	var opts []pipeline.SubmitOption
	if req.Token != "" {
		opts = append(opts, pipeline.WithSubmissionToken(req.Token))
	}

	ctx := c.UserContext()
	orch := s.config.Orchestrator

	var snap memory.Memory
	if req.Enrich == nil || *req.Enrich {
		snap, err = orch.SubmitAndEnrich(ctx, media, opts...)
	} else {
		snap, err = orch.Submit(ctx, media, opts...)
	}
	if err != nil {
		return s.writeErrorWithMemory(c, err, snap)
	}

	return c.Status(fiber.StatusCreated).JSON(s.view(snap))
}

func stage(req SubmitRequest) (memory.Media, error) {
	stager := staging.New()
	if err := stager.AddPhotos(req.Photos...); err != nil {
		return memory.Media{}, err
	}
	if req.Video != "" {
		if err := stager.SetVideo(req.Video); err != nil {
			return memory.Media{}, err
		}
	}
	if req.Audio != "" {
		if err := stager.SetAudio(req.Audio); err != nil {
			return memory.Media{}, err
		}
	}
	stager.SetNote(req.Note)
	return stager.Media(), nil
}

func (s *Server) handleListMemories(c *fiber.Ctx) error {
	summaries, err := s.config.Service.ListMemories(c.UserContext())
	if err != nil {
		return s.writeError(c, err)
	}

	views := processing.NewSummaryViews(summaries, s.config.Service.ResolveURL)
	return c.JSON(ListResponse{Count: len(views), Memories: views})
}

// handleGetMemory returns the cached snapshot, fetching it from the service
// when it is not cached or ?refresh=true is given.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id := c.Params("id")

	if !c.QueryBool("refresh") {
		if snap, ok := s.config.Orchestrator.Snapshot(id); ok {
			return c.JSON(s.view(snap))
		}
	}

	snap, err := s.config.Orchestrator.Refresh(c.UserContext(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.view(snap))
}

func (s *Server) handleEnrich(c *fiber.Ctx) error {
	snap, err := s.config.Orchestrator.RunEnrichment(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.view(snap))
}

func (s *Server) handleTagFaces(c *fiber.Ctx) error {
	var tags []memory.FaceTag
	if err := c.BodyParser(&tags); err != nil {
		return badRequest(c, "body must be a list of {crop_file, label}")
	}

	snap, err := s.config.Orchestrator.TagFaces(c.UserContext(), c.Params("id"), tags)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.view(snap))
}

// handleStory generates the story and narrates it. When only narration
// fails, the error body carries the snapshot with the new story.
func (s *Server) handleStory(c *fiber.Ctx) error {
	snap, err := s.config.Orchestrator.GenerateAndNarrate(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.writeErrorWithMemory(c, err, snap)
	}
	return c.JSON(s.view(snap))
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	snap, err := s.config.Orchestrator.Refresh(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.view(snap))
}

func (s *Server) handleEmbed(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.config.Orchestrator.Embed(c.UserContext(), id); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"memory_id": id, "embedded": true})
}

// narrationRef returns the narration ref of a memory, fetching the memory
// when it is not cached.
func (s *Server) narrationRef(c *fiber.Ctx, id string) (string, error) {
	snap, ok := s.config.Orchestrator.Snapshot(id)
	if !ok || !snap.NarrationAudio.IsSet() {
		var err error
		snap, err = s.config.Orchestrator.Refresh(c.UserContext(), id)
		if err != nil {
			return "", err
		}
	}

	ref := strings.TrimSpace(snap.NarrationAudio.OrElse(""))
	if ref == "" {
		return "", &memory.ValidationError{Field: "narration", Reason: "memory " + id + " has no narration yet"}
	}
	return ref, nil
}
