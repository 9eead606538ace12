package rest

import (
	"strings"
	"time"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

type uploadResponse struct {
	MemoryID string `json:"memory_id"`
}

type detectResponse struct {
	Faces []memory.Face `json:"faces"`
}

type storyResponse struct {
	Story string `json:"story"`
}

type narrateResponse struct {
	AudioURL string `json:"audio_url"`
}

// memoryResponse is the GET /memory/{id} body. The service may omit id and
// created_at, and reports a missing story as "".
type memoryResponse struct {
	ID        string                         `json:"id"`
	Images    []string                       `json:"images"`
	Faces     memory.Optional[[]memory.Face] `json:"faces"`
	Story     *string                        `json:"story"`
	AudioURL  *string                        `json:"audio_url"`
	Thumbnail *string                        `json:"thumbnail"`
	CreatedAt string                         `json:"created_at"`
}

func (r *memoryResponse) toMemory(requestedID string) *memory.Memory {
	m := &memory.Memory{
		ID:             r.ID,
		Images:         r.Images,
		Faces:          r.Faces,
		Story:          optionalString(r.Story),
		NarrationAudio: optionalString(r.AudioURL),
		Thumbnail:      optionalString(r.Thumbnail),
		CreatedAt:      parseTime(r.CreatedAt),
	}
	if m.ID == "" {
		m.ID = requestedID
	}
	if m.Images == nil {
		m.Images = []string{}
	}
	if !m.Thumbnail.IsSet() && len(m.Images) > 0 {
		m.Thumbnail = memory.Some(m.Images[0])
	}
	return m
}

type summaryResponse struct {
	ID        string  `json:"id"`
	Thumbnail *string `json:"thumbnail"`
	CreatedAt string  `json:"created_at"`
}

type listResponse struct {
	Memories []summaryResponse `json:"memories"`
}

type searchRequest struct {
	Q      string  `json:"q"`
	Person *string `json:"person"`
	K      int     `json:"k"`
}

type searchResult struct {
	MemoryID  string  `json:"memory_id"`
	Score     float64 `json:"score"`
	Thumbnail *string `json:"thumbnail"`
}

type searchResponse struct {
	OK      *bool          `json:"ok"`
	Error   string         `json:"error"`
	Results []searchResult `json:"results"`
}

// optionalString maps null and blank strings to absent.
func optionalString(s *string) memory.Optional[string] {
	if s == nil || strings.TrimSpace(*s) == "" {
		return memory.None[string]()
	}
	return memory.Some(*s)
}

// timeLayouts covers RFC 3339 and the zone-less ISO format the service
// writes into metadata.json.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseTime returns the zero time when s is empty or unparseable.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
