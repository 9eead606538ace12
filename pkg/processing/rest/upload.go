package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

const (
	fallbackPhotoType = "image/jpeg"
	fallbackVideoType = "video/mp4"
	fallbackAudioType = "audio/mpeg"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload streams the staged media as multipart form data and returns the new
// memory id. Callers must validate that media is non-empty first.
func (c *Client) Upload(ctx context.Context, media memory.Media) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMedia(mw, media))
	}()

	var resp uploadResponse
	err := c.do(ctx, memory.StageUpload, http.MethodPost, "/upload", pr, mw.FormDataContentType(), &resp)

	// Unblock the writer goroutine if the request ended before the body was
	// fully consumed.
	_ = pr.CloseWithError(io.ErrClosedPipe)

	if err != nil {
		return "", err
	}
	if resp.MemoryID == "" {
		return "", &memory.RemoteError{Stage: memory.StageUpload, Err: errors.New("response missing memory_id")}
	}

	return resp.MemoryID, nil
}

func writeMedia(mw *multipart.Writer, media memory.Media) error {
	for i, photo := range media.Photos {
		name := photo.Name
		if name == "" {
			name = fmt.Sprintf("photo_%d.jpg", i)
		}
		if err := writeFilePart(mw, "photos", name, photo, fallbackPhotoType); err != nil {
			return err
		}
	}

	if video, ok := media.Video.Get(); ok {
		if err := writeFilePart(mw, "video", video.Name, video, fallbackVideoType); err != nil {
			return err
		}
	}

	if audio, ok := media.Audio.Get(); ok {
		if err := writeFilePart(mw, "audio", audio.Name, audio, fallbackAudioType); err != nil {
			return err
		}
	}

	if note, ok := media.Note.Get(); ok && strings.TrimSpace(note) != "" {
		if err := mw.WriteField("story", strings.TrimSpace(note)); err != nil {
			return fmt.Errorf("writing note: %w", err)
		}
	}

	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, field, name string, file memory.MediaFile, fallbackType string) error {
	if name == "" {
		name = filepath.Base(file.Path)
	}
	contentType := file.MIMEType
	if contentType == "" {
		contentType = fallbackType
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", field, err)
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file.Path, err)
	}
	defer f.Close()

	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("writing %s: %w", file.Path, err)
	}

	return nil
}
