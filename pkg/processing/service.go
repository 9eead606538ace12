// Package processing defines the boundary to the remote memory processing
// service: upload, enrichment stages, retrieval, and search.
//
// Every method fails with a *memory.RemoteError tagged with its stage.
// Transport and service failures are not distinguished further.
package processing

import (
	"context"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

// DefaultSearchK is the number of results requested when none is given.
const DefaultSearchK = 6

// SearchRequest is a ranked retrieval query. Person is absent when no filter
// applies; it is never an empty string.
type SearchRequest struct {
	Query  string
	Person memory.Optional[string]
	K      int
}

// Service is the remote processing service.
type Service interface {
	// Upload creates a new memory from staged media and returns its id. It is
	// not idempotent: each call creates a memory.
	Upload(ctx context.Context, media memory.Media) (string, error)

	// Process runs the service's ingest step (transcription, captions).
	Process(ctx context.Context, memoryID string) error

	// DetectFaces runs face detection and returns the full face list,
	// replacing any earlier detection.
	DetectFaces(ctx context.Context, memoryID string) ([]memory.Face, error)

	// TagFaces applies labels to face crops.
	TagFaces(ctx context.Context, memoryID string, tags []memory.FaceTag) error

	// GenerateStory (re)generates the narrative and returns it.
	GenerateStory(ctx context.Context, memoryID string) (string, error)

	// Narrate synthesizes speech for the story and returns the audio ref.
	Narrate(ctx context.Context, memoryID string) (string, error)

	// Embed (re)indexes the memory for search.
	Embed(ctx context.Context, memoryID string) error

	GetMemory(ctx context.Context, memoryID string) (*memory.Memory, error)
	ListMemories(ctx context.Context) ([]memory.Summary, error)
	Search(ctx context.Context, req SearchRequest) ([]memory.SearchResult, error)
	Health(ctx context.Context) error

	// ResolveURL turns a server-relative media ref into an absolute URL.
	ResolveURL(ref string) string
}
