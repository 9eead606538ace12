// Package memory defines the client-side model of a captured memory: the
// staged media that creates it, the enrichment artifacts the processing
// service attaches to it, and the lifecycle status derived from them.
//
// The remote service is the source of truth for every persisted field. A
// Memory held by the client is a cache of the last snapshot it saw.
//
// A memory's Status is never stored. It is computed from which enrichment
// fields are populated:
//
//	faces unset                      -> uploaded
//	faces set, story unset           -> faces-detected
//	story set, narration unset       -> story-generated
//	narration set                    -> complete
package memory

import "time"

// Status is the inferred lifecycle position of a memory.
type Status string

const (
	StatusUploaded       Status = "uploaded"
	StatusFacesDetected  Status = "faces-detected"
	StatusStoryGenerated Status = "story-generated"
	StatusComplete       Status = "complete"
)

// Rank orders statuses along the pipeline, starting at 0 for uploaded.
func (s Status) Rank() int {
	switch s {
	case StatusFacesDetected:
		return 1
	case StatusStoryGenerated:
		return 2
	case StatusComplete:
		return 3
	default:
		return 0
	}
}

// DeriveStatus computes a memory's status from its enrichment fields. It is
// total over every combination of the three inputs: later artifacts win, so
// a narration with no story still reads as complete.
func DeriveStatus(faces Optional[[]Face], story Optional[string], narration Optional[string]) Status {
	switch {
	case narration.IsSet():
		return StatusComplete
	case story.IsSet():
		return StatusStoryGenerated
	case faces.IsSet():
		return StatusFacesDetected
	default:
		return StatusUploaded
	}
}

// Face is a detected face crop. CropFile is the stable handle used to tag
// it; URL is the server-relative path of the crop image.
type Face struct {
	CropFile string           `json:"crop_file"`
	URL      string           `json:"url,omitempty"`
	Label    Optional[string] `json:"label"`
}

// FaceTag names the person in a face crop.
type FaceTag struct {
	CropFile string `json:"crop_file"`
	Label    string `json:"label"`
}

// Memory is a snapshot of a memory as last reported by the processing
// service, or as advanced locally by a successful pipeline stage.
type Memory struct {
	ID string `json:"id"`

	// Images are server-relative references to the uploaded photos.
	Images []string `json:"images"`

	// Faces is unset until a detect step has succeeded. A set, empty list
	// means detection ran and found nobody.
	Faces Optional[[]Face] `json:"faces"`

	Story          Optional[string] `json:"story"`
	NarrationAudio Optional[string] `json:"narration_audio"`
	Thumbnail      Optional[string] `json:"thumbnail"`

	CreatedAt time.Time `json:"created_at"`
}

// Status derives the memory's lifecycle position.
func (m *Memory) Status() Status {
	return DeriveStatus(m.Faces, m.Story, m.NarrationAudio)
}

// Clone returns a deep copy so callers can read a snapshot without sharing
// slices with the owner.
func (m *Memory) Clone() Memory {
	out := *m
	if m.Images != nil {
		out.Images = append([]string(nil), m.Images...)
	}
	if faces, ok := m.Faces.Get(); ok {
		out.Faces = Some(append([]Face{}, faces...))
	}
	return out
}

// Summary is the list view of a memory.
type Summary struct {
	ID        string           `json:"id"`
	Thumbnail Optional[string] `json:"thumbnail"`
	CreatedAt time.Time        `json:"created_at"`
}

// SearchResult references a memory ranked by a search query. Score is in
// [0,1], higher is better.
type SearchResult struct {
	MemoryID  string           `json:"memory_id"`
	Score     float64          `json:"score"`
	Thumbnail Optional[string] `json:"thumbnail"`
}
