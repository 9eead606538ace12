package api

import (
	"github.com/gofiber/fiber/v2"
)

// handlePlay plays a memory's narration, replacing whatever was loaded.
func (s *Server) handlePlay(c *fiber.Ctx) error {
	ref, err := s.narrationRef(c, c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}

	if err := s.config.Playback.Play(c.UserContext(), ref); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.config.Playback.State())
}

func (s *Server) handlePlaybackStop(c *fiber.Ctx) error {
	if err := s.config.Playback.Stop(c.UserContext()); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.config.Playback.State())
}

func (s *Server) handlePlaybackRelease(c *fiber.Ctx) error {
	if err := s.config.Playback.Release(c.UserContext()); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.config.Playback.State())
}

func (s *Server) handlePlaybackState(c *fiber.Ctx) error {
	return c.JSON(s.config.Playback.State())
}
