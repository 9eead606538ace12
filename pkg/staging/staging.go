// Package staging accumulates locally picked media before a memory is
// submitted. It never touches the network.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

// extensionTypes is consulted when content sniffing does not match the
// requested kind, e.g. an m4a voice memo sniffed as video/mp4.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

// Stager holds one in-progress media set.
type Stager struct {
	mu     sync.Mutex
	photos []memory.MediaFile
	video  memory.Optional[memory.MediaFile]
	audio  memory.Optional[memory.MediaFile]
	note   memory.Optional[string]
}

// New returns an empty Stager.
func New() *Stager {
	return &Stager{}
}

// AddPhotos stages photos in order. Either every path is staged or none is.
func (s *Stager) AddPhotos(paths ...string) error {
	files := make([]memory.MediaFile, 0, len(paths))
	for _, p := range paths {
		f, err := Inspect(p, memory.KindPhoto)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = append(s.photos, files...)
	return nil
}

// RemovePhoto unstages the photo at index.
func (s *Stager) RemovePhoto(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.photos) {
		return &memory.ValidationError{Field: "photo", Reason: fmt.Sprintf("index %d out of range", index)}
	}
	s.photos = append(s.photos[:index], s.photos[index+1:]...)
	return nil
}

// SetVideo stages the video, replacing any earlier one.
func (s *Stager) SetVideo(path string) error {
	f, err := Inspect(path, memory.KindVideo)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = memory.Some(f)
	return nil
}

// ClearVideo unstages the video clip, if any.
func (s *Stager) ClearVideo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = memory.None[memory.MediaFile]()
}

// SetAudio stages the audio clip, replacing any earlier one.
func (s *Stager) SetAudio(path string) error {
	f, err := Inspect(path, memory.KindAudio)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = memory.Some(f)
	return nil
}

// ClearAudio unstages the audio clip, if any.
func (s *Stager) ClearAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = memory.None[memory.MediaFile]()
}

// SetNote stages the caregiver's text. Blank text clears it.
func (s *Stager) SetNote(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		s.note = memory.None[string]()
		return
	}
	s.note = memory.Some(strings.TrimSpace(text))
}

// Media returns a copy of the staged set.
func (s *Stager) Media() memory.Media {
	s.mu.Lock()
	defer s.mu.Unlock()

	return memory.Media{
		Photos: append([]memory.MediaFile(nil), s.photos...),
		Video:  s.video,
		Audio:  s.audio,
		Note:   s.note,
	}
}

// Reset clears everything, typically after a successful submission.
func (s *Stager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.photos = nil
	s.video = memory.None[memory.MediaFile]()
	s.audio = memory.None[memory.MediaFile]()
	s.note = memory.None[string]()
}

// Inspect validates that path is a readable regular file of the given kind
// and returns it with its content type.
func Inspect(path string, kind memory.Kind) (memory.MediaFile, error) {
	field := string(kind)

	info, err := os.Stat(path)
	if err != nil {
		return memory.MediaFile{}, &memory.ValidationError{Field: field, Reason: fmt.Sprintf("cannot read %s: %v", path, err)}
	}
	if !info.Mode().IsRegular() {
		return memory.MediaFile{}, &memory.ValidationError{Field: field, Reason: path + " is not a regular file"}
	}

	mimeType, err := contentType(path, kind)
	if err != nil {
		return memory.MediaFile{}, err
	}

	return memory.MediaFile{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: mimeType,
	}, nil
}

func contentType(path string, kind memory.Kind) (string, error) {
	prefix := kindPrefix(kind)

	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", &memory.ValidationError{Field: string(kind), Reason: fmt.Sprintf("cannot sniff %s: %v", path, err)}
	}

	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), prefix) {
			return stripParams(m.String()), nil
		}
	}

	if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok && strings.HasPrefix(byExt, prefix) {
		return byExt, nil
	}

	return "", &memory.ValidationError{
		Field:  string(kind),
		Reason: fmt.Sprintf("%s looks like %s, not %s", filepath.Base(path), stripParams(detected.String()), kind),
	}
}

func kindPrefix(kind memory.Kind) string {
	switch kind {
	case memory.KindPhoto:
		return "image/"
	case memory.KindVideo:
		return "video/"
	default:
		return "audio/"
	}
}

// stripParams drops "; charset=..." style parameters.
func stripParams(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		return strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
