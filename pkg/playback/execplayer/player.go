// Package execplayer implements playback.Loader by downloading narration
// audio to a temp file and playing it with an external command such as
// ffplay or afplay.
package execplayer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/playback"
)

const (
	// DefaultCommand is the default external player.
	DefaultCommand = "ffplay"

	downloadTimeout = 60 * time.Second
)

// DefaultArgs play audio once without opening a window.
var DefaultArgs = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}

// Config configures a Player.
type Config struct {
	// Command is the player executable. Defaults to DefaultCommand.
	Command string

	// Args precede the audio file path. Defaults to DefaultArgs when Command
	// is also defaulted.
	Args []string

	HTTPClient *http.Client

	// TempDir holds downloaded audio. Defaults to os.TempDir().
	TempDir string

	Logger *slog.Logger
}

// Player loads sounds for an external player command.
type Player struct {
	command    string
	args       []string
	httpClient *http.Client
	tempDir    string
	logger     *slog.Logger
}

// New creates a Player.
func New(cfg Config) *Player {
	command, args := cfg.Command, cfg.Args
	if command == "" {
		command = DefaultCommand
		if args == nil {
			args = DefaultArgs
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: downloadTimeout}
	}

	return &Player{
		command:    command,
		args:       args,
		httpClient: httpClient,
		tempDir:    cfg.TempDir,
		logger:     logger.OrNop(cfg.Logger),
	}
}

// Load fetches uri. HTTP(S) URIs are downloaded to a temp file owned by the
// returned sound; file URIs and plain paths are played in place.
func (p *Player) Load(ctx context.Context, uri string) (playback.Sound, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing audio uri: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		file, err := p.download(ctx, uri, path.Ext(u.Path))
		if err != nil {
			return nil, err
		}
		return p.newSound(file, true), nil

	case "file":
		return p.local(u.Path)

	case "":
		return p.local(uri)

	default:
		return nil, fmt.Errorf("unsupported audio uri scheme %q", u.Scheme)
	}
}

func (p *Player) local(file string) (playback.Sound, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("reading audio file: %w", err)
	}
	return p.newSound(file, false), nil
}

func (p *Player) download(ctx context.Context, uri, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("audio download returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if ext == "" {
		ext = ".audio"
	}
	f, err := os.CreateTemp(p.tempDir, "palace-narration-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing audio: %w", err)
	}

	p.logger.Debug("narration downloaded", "uri", uri, "file", f.Name())
	return f.Name(), nil
}

func (p *Player) newSound(file string, owned bool) *sound {
	return &sound{
		file:    file,
		owned:   owned,
		command: p.command,
		args:    p.args,
		logger:  p.logger,
		done:    make(chan struct{}),
	}
}

type sound struct {
	file    string
	owned   bool
	command string
	args    []string
	logger  *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	unloaded bool

	done     chan struct{}
	doneOnce sync.Once
}

// Play starts the player process. The process is not bound to ctx: playback
// outlives the request that started it.
func (s *sound) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unloaded {
		return errors.New("sound already unloaded")
	}
	if s.cmd != nil {
		return errors.New("sound already started")
	}

	args := append(append([]string{}, s.args...), s.file)
	cmd := exec.Command(s.command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.command, err)
	}
	s.cmd = cmd

	go func() {
		if err := cmd.Wait(); err != nil {
			s.logger.Debug("player exited", "command", s.command, "error", err)
		}
		s.finish()
	}()

	return nil
}

// Stop kills the player process if it is running.
func (s *sound) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *sound) stopLocked() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stopping %s: %w", s.command, err)
	}
	return nil
}

// Unload stops playback and removes a downloaded file.
func (s *sound) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unloaded {
		return nil
	}
	s.unloaded = true

	err := s.stopLocked()
	if s.cmd == nil {
		s.finish()
	}

	if s.owned {
		if rmErr := os.Remove(s.file); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("removing %s: %w", s.file, rmErr))
		}
	}
	return err
}

func (s *sound) Done() <-chan struct{} {
	return s.done
}

func (s *sound) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

var _ playback.Loader = (*Player)(nil)
