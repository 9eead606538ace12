package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/processing"
)

// MockService is an in-memory processing service. It keeps server-side state
// the way the real service does, so refreshes observe earlier stages.
type MockService struct {
	mu sync.Mutex

	// UploadIDs are handed out by Upload in order. When exhausted, ids are
	// generated as "memory_<n>".
	UploadIDs []string

	// Faces is what DetectFaces reports for every memory.
	Faces []memory.Face

	// Story and AudioURL are returned by GenerateStory and Narrate.
	Story    string
	AudioURL string

	// Results is returned by Search verbatim.
	Results []memory.SearchResult

	// Fail makes the named stage return the error.
	Fail map[memory.Stage]error

	// Gate, when set, blocks every call on the given stage until a value is
	// received or the channel is closed. Entered, when set, is signaled as
	// each gated call starts.
	Gate    map[memory.Stage]chan struct{}
	Entered chan memory.Stage

	BaseURL string

	calls     []string
	tagged    [][]memory.FaceTag
	searches  []processing.SearchRequest
	uploads   []memory.Media
	memories  map[string]*memory.Memory
	order     []string
	generated int
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{
		Faces:    []memory.Face{},
		Story:    "A sunny afternoon at the beach.",
		AudioURL: "/files/tts/story.wav",
		Fail:     make(map[memory.Stage]error),
		Gate:     make(map[memory.Stage]chan struct{}),
		BaseURL:  "http://processing.test",
		memories: make(map[string]*memory.Memory),
	}
}

// Seed stores a memory as if it had been uploaded earlier.
func (s *MockService) Seed(m memory.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := m.Clone()
	if _, ok := s.memories[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.memories[m.ID] = &clone
}

// Calls returns the recorded calls as "stage" or "stage:id".
func (s *MockService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Tagged returns every tag batch sent.
func (s *MockService) Tagged() [][]memory.FaceTag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]memory.FaceTag(nil), s.tagged...)
}

// Searches returns every search request received.
func (s *MockService) Searches() []processing.SearchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]processing.SearchRequest(nil), s.searches...)
}

// Uploads returns every media set uploaded.
func (s *MockService) Uploads() []memory.Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memory.Media(nil), s.uploads...)
}

// GenerateCount is the number of successful story generations.
func (s *MockService) GenerateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generated
}

func (s *MockService) enter(ctx context.Context, stage memory.Stage, id string) error {
	s.mu.Lock()
	if id == "" {
		s.calls = append(s.calls, string(stage))
	} else {
		s.calls = append(s.calls, string(stage)+":"+id)
	}
	gate := s.Gate[stage]
	entered := s.Entered
	err := s.Fail[stage]
	s.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- stage
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return &memory.RemoteError{Stage: stage, Err: ctx.Err()}
		}
	}

	if err != nil {
		return &memory.RemoteError{Stage: stage, Err: err}
	}
	return nil
}

func (s *MockService) Upload(ctx context.Context, media memory.Media) (string, error) {
	if err := s.enter(ctx, memory.StageUpload, ""); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	if len(s.UploadIDs) > 0 {
		id, s.UploadIDs = s.UploadIDs[0], s.UploadIDs[1:]
	} else {
		id = fmt.Sprintf("memory_%d", len(s.order)+1)
	}

	images := make([]string, 0, len(media.Photos))
	for _, p := range media.Photos {
		images = append(images, "/files/"+id+"/images/"+p.Name)
	}

	s.uploads = append(s.uploads, media)
	s.memories[id] = &memory.Memory{ID: id, Images: images}
	s.order = append(s.order, id)
	return id, nil
}

func (s *MockService) Process(ctx context.Context, memoryID string) error {
	if err := s.enter(ctx, memory.StageProcess, memoryID); err != nil {
		return err
	}
	return s.require(memory.StageProcess, memoryID)
}

func (s *MockService) DetectFaces(ctx context.Context, memoryID string) ([]memory.Face, error) {
	if err := s.enter(ctx, memory.StageDetectFaces, memoryID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[memoryID]
	if !ok {
		return nil, notFound(memory.StageDetectFaces)
	}
	faces := append([]memory.Face{}, s.Faces...)
	m.Faces = memory.Some(faces)
	return append([]memory.Face{}, faces...), nil
}

func (s *MockService) TagFaces(ctx context.Context, memoryID string, tags []memory.FaceTag) error {
	if err := s.enter(ctx, memory.StageTagFaces, memoryID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tagged = append(s.tagged, append([]memory.FaceTag(nil), tags...))

	m, ok := s.memories[memoryID]
	if !ok {
		return notFound(memory.StageTagFaces)
	}
	faces, ok := m.Faces.Get()
	if !ok {
		return &memory.RemoteError{Stage: memory.StageTagFaces, StatusCode: 404, Body: "faces.json not found; run detect first"}
	}
	for i := range faces {
		for _, t := range tags {
			if faces[i].CropFile == t.CropFile {
				faces[i].Label = memory.Some(t.Label)
			}
		}
	}
	return nil
}

func (s *MockService) GenerateStory(ctx context.Context, memoryID string) (string, error) {
	if err := s.enter(ctx, memory.StageGenerateStory, memoryID); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[memoryID]
	if !ok {
		return "", notFound(memory.StageGenerateStory)
	}
	s.generated++
	m.Story = memory.Some(s.Story)
	return s.Story, nil
}

func (s *MockService) Narrate(ctx context.Context, memoryID string) (string, error) {
	if err := s.enter(ctx, memory.StageNarrate, memoryID); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[memoryID]
	if !ok {
		return "", notFound(memory.StageNarrate)
	}
	m.NarrationAudio = memory.Some(s.AudioURL)
	return s.AudioURL, nil
}

func (s *MockService) Embed(ctx context.Context, memoryID string) error {
	if err := s.enter(ctx, memory.StageEmbed, memoryID); err != nil {
		return err
	}
	return s.require(memory.StageEmbed, memoryID)
}

func (s *MockService) GetMemory(ctx context.Context, memoryID string) (*memory.Memory, error) {
	if err := s.enter(ctx, memory.StageGetMemory, memoryID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[memoryID]
	if !ok {
		return nil, notFound(memory.StageGetMemory)
	}
	clone := m.Clone()
	return &clone, nil
}

func (s *MockService) ListMemories(ctx context.Context) ([]memory.Summary, error) {
	if err := s.enter(ctx, memory.StageListMemories, ""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]memory.Summary, 0, len(s.order))
	for _, id := range s.order {
		m := s.memories[id]
		out = append(out, memory.Summary{ID: id, Thumbnail: m.Thumbnail, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func (s *MockService) Search(ctx context.Context, req processing.SearchRequest) ([]memory.SearchResult, error) {
	s.mu.Lock()
	s.searches = append(s.searches, req)
	s.mu.Unlock()

	if err := s.enter(ctx, memory.StageSearch, ""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memory.SearchResult(nil), s.Results...), nil
}

func (s *MockService) Health(ctx context.Context) error {
	return s.enter(ctx, memory.StageHealth, "")
}

func (s *MockService) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.BaseURL + ref
}

func (s *MockService) require(stage memory.Stage, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memories[memoryID]; !ok {
		return notFound(stage)
	}
	return nil
}

func notFound(stage memory.Stage) error {
	return &memory.RemoteError{Stage: stage, StatusCode: 404, Body: "Memory not found"}
}

var _ processing.Service = (*MockService)(nil)
