package processing

import (
	"time"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

// FaceView is a face crop with its image URL resolved.
type FaceView struct {
	CropFile string  `json:"crop_file"`
	URL      string  `json:"url,omitempty"`
	Label    *string `json:"label"`
}

// MemoryView is the presentation form of a memory: derived status included
// and every server-relative ref resolved against the service origin.
type MemoryView struct {
	ID             string        `json:"id"`
	Status         memory.Status `json:"status"`
	Images         []string      `json:"images"`
	Faces          []FaceView    `json:"faces"`
	FacesDetected  bool          `json:"faces_detected"`
	Story          *string       `json:"story"`
	NarrationAudio *string       `json:"narration_audio"`
	Thumbnail      *string       `json:"thumbnail"`
	CreatedAt      *time.Time    `json:"created_at,omitempty"`
}

// SummaryView is the presentation form of a memory summary.
type SummaryView struct {
	ID        string     `json:"id"`
	Thumbnail *string    `json:"thumbnail"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// SearchResultView is the presentation form of a search hit.
type SearchResultView struct {
	MemoryID  string  `json:"memory_id"`
	Score     float64 `json:"score"`
	Thumbnail *string `json:"thumbnail"`
}

// NewMemoryView builds a MemoryView, resolving refs with resolve.
func NewMemoryView(m memory.Memory, resolve func(string) string) MemoryView {
	v := MemoryView{
		ID:             m.ID,
		Status:         m.Status(),
		Images:         make([]string, 0, len(m.Images)),
		Faces:          []FaceView{},
		Story:          optionalPtr(m.Story, nil),
		NarrationAudio: optionalPtr(m.NarrationAudio, resolve),
		Thumbnail:      optionalPtr(m.Thumbnail, resolve),
		CreatedAt:      timePtr(m.CreatedAt),
	}

	for _, img := range m.Images {
		v.Images = append(v.Images, resolve(img))
	}

	if faces, ok := m.Faces.Get(); ok {
		v.FacesDetected = true
		for _, f := range faces {
			v.Faces = append(v.Faces, FaceView{
				CropFile: f.CropFile,
				URL:      resolve(f.URL),
				Label:    optionalPtr(f.Label, nil),
			})
		}
	}

	return v
}

// NewSummaryViews converts summaries in order.
func NewSummaryViews(summaries []memory.Summary, resolve func(string) string) []SummaryView {
	out := make([]SummaryView, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, SummaryView{
			ID:        s.ID,
			Thumbnail: optionalPtr(s.Thumbnail, resolve),
			CreatedAt: timePtr(s.CreatedAt),
		})
	}
	return out
}

// NewSearchResultViews converts results without reordering them.
func NewSearchResultViews(results []memory.SearchResult, resolve func(string) string) []SearchResultView {
	out := make([]SearchResultView, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResultView{
			MemoryID:  r.MemoryID,
			Score:     r.Score,
			Thumbnail: optionalPtr(r.Thumbnail, resolve),
		})
	}
	return out
}

func optionalPtr(o memory.Optional[string], resolve func(string) string) *string {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	if resolve != nil {
		v = resolve(v)
	}
	return &v
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
