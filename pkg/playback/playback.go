// Package playback owns the single narration audio session.
//
// At most one Sound is loaded at a time. Play, Stop, and Release are
// serialized: a Play issued while another is still loading waits for it to
// settle, and the previous sound is always unloaded before the next one is
// loaded.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/metrics"
)

// Sound is one loaded audio resource.
type Sound interface {
	// Play starts playback and returns without waiting for it to finish.
	Play(ctx context.Context) error

	// Stop halts playback. The sound stays loaded.
	Stop() error

	// Unload frees the resource. It is safe to call more than once.
	Unload() error

	// Done is closed when playback ends for any reason: natural end, Stop,
	// or Unload.
	Done() <-chan struct{}
}

// Loader loads audio from a URI.
type Loader interface {
	Load(ctx context.Context, uri string) (Sound, error)
}

// State is a point-in-time view of the controller.
type State struct {
	Ref     string `json:"ref,omitempty"`
	Loaded  bool   `json:"loaded"`
	Playing bool   `json:"playing"`
}

// Config configures a Controller.
type Config struct {
	Loader Loader

	// Resolve maps a narration ref to a loadable URI. Defaults to identity.
	Resolve func(ref string) string

	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

type session struct {
	ref     string
	sound   Sound
	playing bool
}

// Controller manages the playback session.
type Controller struct {
	loader  Loader
	resolve func(string) string
	metrics *metrics.Recorder
	logger  *slog.Logger

	// ops serializes Play, Stop, and Release.
	ops *semaphore.Weighted

	mu      sync.Mutex
	current *session
}

// NewController creates a Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("playback requires a loader")
	}

	resolve := cfg.Resolve
	if resolve == nil {
		resolve = func(ref string) string { return ref }
	}

	return &Controller{
		loader:  cfg.Loader,
		resolve: resolve,
		metrics: cfg.Metrics,
		logger:  logger.OrNop(cfg.Logger),
		ops:     semaphore.NewWeighted(1),
	}, nil
}

// Play releases any loaded sound, loads ref, and starts it. Release
// failures of the previous sound are logged and never block the new load.
func (c *Controller) Play(ctx context.Context, ref string) (err error) {
	defer func() { c.metrics.ObservePlayback("play", err) }()

	if ref == "" {
		return &memory.ValidationError{Field: "audio", Reason: "no narration audio to play"}
	}

	if err := c.ops.Acquire(ctx, 1); err != nil {
		return &memory.PlaybackError{Op: "play", Ref: ref, Err: err}
	}
	defer c.ops.Release(1)

	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()

	if prev != nil {
		if err := prev.sound.Unload(); err != nil {
			c.logger.Warn("failed to release previous sound",
				"ref", prev.ref,
				"error", err,
			)
		}
	}

	sound, err := c.loader.Load(ctx, c.resolve(ref))
	if err != nil {
		return &memory.PlaybackError{Op: "load", Ref: ref, Err: err}
	}

	if err := sound.Play(ctx); err != nil {
		if unloadErr := sound.Unload(); unloadErr != nil {
			c.logger.Warn("failed to release sound after play error", "ref", ref, "error", unloadErr)
		}
		return &memory.PlaybackError{Op: "play", Ref: ref, Err: err}
	}

	s := &session{ref: ref, sound: sound, playing: true}
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	go c.watch(s)

	c.logger.Info("playback started", "ref", ref)
	return nil
}

// watch marks s as not playing once its sound finishes. It only touches s if
// s is still the current session.
func (c *Controller) watch(s *session) {
	<-s.sound.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == s && s.playing {
		s.playing = false
		c.logger.Debug("playback finished", "ref", s.ref)
	}
}

// Stop halts playback and keeps the sound loaded. It is a no-op when
// nothing is playing.
func (c *Controller) Stop(ctx context.Context) (err error) {
	if err := c.ops.Acquire(ctx, 1); err != nil {
		return &memory.PlaybackError{Op: "stop", Err: err}
	}
	defer c.ops.Release(1)

	c.mu.Lock()
	s := c.current
	if s == nil || !s.playing {
		c.mu.Unlock()
		return nil
	}
	s.playing = false
	c.mu.Unlock()

	defer func() { c.metrics.ObservePlayback("stop", err) }()

	if err := s.sound.Stop(); err != nil {
		return &memory.PlaybackError{Op: "stop", Ref: s.ref, Err: err}
	}
	return nil
}

// Release frees the loaded sound. It is a no-op when nothing is loaded.
// The session is cleared even when unloading fails.
func (c *Controller) Release(ctx context.Context) (err error) {
	if err := c.ops.Acquire(ctx, 1); err != nil {
		return &memory.PlaybackError{Op: "release", Err: err}
	}
	defer c.ops.Release(1)

	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	defer func() { c.metrics.ObservePlayback("release", err) }()

	if err := s.sound.Unload(); err != nil {
		return &memory.PlaybackError{Op: "release", Ref: s.ref, Err: err}
	}
	c.logger.Debug("playback released", "ref", s.ref)
	return nil
}

// IsPlaying reports whether the current sound is playing.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.playing
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return State{}
	}
	return State{Ref: c.current.ref, Loaded: true, Playing: c.current.playing}
}
