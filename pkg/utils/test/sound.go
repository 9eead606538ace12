package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/memorypalace/pkg/playback"
)

// MockSound is an in-memory playback.Sound.
type MockSound struct {
	URI string

	loader   *MockLoader
	mu       sync.Mutex
	done     chan struct{}
	closed   bool
	unloaded bool
	stopped  bool

	// FailPlay, FailStop, and FailUnload make the matching call fail.
	FailPlay   error
	FailStop   error
	FailUnload error
}

func (s *MockSound) Play(_ context.Context) error {
	return s.FailPlay
}

func (s *MockSound) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailStop != nil {
		return s.FailStop
	}
	s.stopped = true
	s.finishLocked()
	return nil
}

func (s *MockSound) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.unloaded {
		s.unloaded = true
		s.loader.unloaded(s)
	}
	s.finishLocked()
	return s.FailUnload
}

func (s *MockSound) Done() <-chan struct{} {
	return s.done
}

// Finish simulates playback reaching its natural end.
func (s *MockSound) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
}

// Unloaded reports whether Unload was called.
func (s *MockSound) Unloaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unloaded
}

// Stopped reports whether Stop succeeded.
func (s *MockSound) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *MockSound) finishLocked() {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// MockLoader hands out MockSounds and tracks how many are loaded at once.
type MockLoader struct {
	mu      sync.Mutex
	sounds  []*MockSound
	live    int
	maxLive int

	// Gate, when set, blocks Load until a value is received or the channel
	// is closed. Entered is signaled with the URI as each gated Load starts.
	Gate    chan struct{}
	Entered chan string

	// FailLoad makes Load fail for the given URI.
	FailLoad map[string]error

	// Configure, when set, is applied to each new sound before it is returned.
	Configure func(*MockSound)
}

func NewMockLoader() *MockLoader {
	return &MockLoader{FailLoad: make(map[string]error)}
}

func (l *MockLoader) Load(ctx context.Context, uri string) (playback.Sound, error) {
	l.mu.Lock()
	gate, entered := l.Gate, l.Entered
	failErr := l.FailLoad[uri]
	l.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- uri
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failErr != nil {
		return nil, failErr
	}

	s := &MockSound{URI: uri, loader: l, done: make(chan struct{})}
	if l.Configure != nil {
		l.Configure(s)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sounds = append(l.sounds, s)
	l.live++
	if l.live > l.maxLive {
		l.maxLive = l.live
	}
	return s, nil
}

func (l *MockLoader) unloaded(_ *MockSound) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.live--
}

// Sounds returns every sound loaded so far.
func (l *MockLoader) Sounds() []*MockSound {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*MockSound(nil), l.sounds...)
}

// Live is the number of sounds loaded and not yet unloaded.
func (l *MockLoader) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// MaxLive is the highest number of sounds ever loaded at once.
func (l *MockLoader) MaxLive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxLive
}

// ErrDeviceBusy is a convenience failure for sound tests.
var ErrDeviceBusy = errors.New("audio device busy")

var _ playback.Sound = (*MockSound)(nil)
var _ playback.Loader = (*MockLoader)(nil)
