package memory

// Kind is the category of a staged media file.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// MediaFile is a locally picked file waiting to be uploaded.
type MediaFile struct {
	// Path is the local filesystem path.
	Path string `json:"path"`

	// Name is the filename sent in the multipart upload.
	Name string `json:"name"`

	// MIMEType is the Content-Type of the multipart part.
	MIMEType string `json:"mime_type"`
}

// Media is the set of files submitted together as one memory. Note is an
// optional caregiver-written text sent alongside the files; it does not count
// as media.
type Media struct {
	Photos []MediaFile         `json:"photos"`
	Video  Optional[MediaFile] `json:"video"`
	Audio  Optional[MediaFile] `json:"audio"`
	Note   Optional[string]    `json:"note"`
}

// IsEmpty reports whether no photo, video, or audio is present.
func (m Media) IsEmpty() bool {
	return len(m.Photos) == 0 && !m.Video.IsSet() && !m.Audio.IsSet()
}

// Count returns the number of files in the set.
func (m Media) Count() int {
	n := len(m.Photos)
	if m.Video.IsSet() {
		n++
	}
	if m.Audio.IsSet() {
		n++
	}
	return n
}
