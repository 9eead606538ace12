package memory

import (
	"errors"
	"fmt"
)

// Stage names a remote operation. Every RemoteError carries the stage that
// failed so callers can retry exactly that step.
type Stage string

const (
	StageUpload        Stage = "upload"
	StageProcess       Stage = "process"
	StageDetectFaces   Stage = "detect_faces"
	StageTagFaces      Stage = "tag_faces"
	StageGenerateStory Stage = "generate_story"
	StageNarrate       Stage = "narrate"
	StageEmbed         Stage = "embed"
	StageGetMemory     Stage = "get_memory"
	StageListMemories  Stage = "list_memories"
	StageSearch        Stage = "search"
	StageHealth        Stage = "health"
)

// ErrBusy is returned when an operation is rejected because another
// operation on the same memory, or another submission, is still in flight.
var ErrBusy = errors.New("operation already in flight")

// ValidationError is a precondition failure detected locally. It is always
// raised before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RemoteError is a transport or service failure at the processing boundary.
// StatusCode is zero for transport failures (connectivity, timeout).
type RemoteError struct {
	Stage      Stage
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s failed: service returned status %d: %s", e.Stage, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed: service returned status %d", e.Stage, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s failed", e.Stage)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// PlaybackError is an audio load or play failure. It never affects the
// pipeline state of any memory.
type PlaybackError struct {
	Op  string
	Ref string
	Err error
}

func (e *PlaybackError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("playback %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("playback %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// StageOf returns the failed stage of a RemoteError anywhere in err's chain.
func StageOf(err error) (Stage, bool) {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Stage, true
	}
	return "", false
}
