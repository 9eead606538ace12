// Package pipeline drives memories through the enrichment workflow: upload,
// process and detect faces, optional face tagging, story generation and
// narration.
//
// The Orchestrator owns the client-side snapshot of every memory it has
// touched. Snapshots only advance when a stage succeeds, so a memory's
// derived status never claims a stage that did not complete. Overlapping
// operations on one memory are rejected with memory.ErrBusy rather than
// interleaved.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/memorypalace/pkg/eventstream"
	"github.com/papercomputeco/memorypalace/pkg/eventstream/nop"
	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/metrics"
	"github.com/papercomputeco/memorypalace/pkg/processing"
)

const publishTimeout = 5 * time.Second

// Config is the configuration for an Orchestrator.
type Config struct {
	// Service is the remote processing service. Required.
	Service processing.Service

	// Publisher receives one event per stage attempt. Defaults to a no-op.
	Publisher eventstream.Publisher

	// Metrics is optional.
	Metrics *metrics.Recorder

	Logger *slog.Logger
}

// Orchestrator sequences pipeline stages and holds memory snapshots.
type Orchestrator struct {
	svc       processing.Service
	publisher eventstream.Publisher
	metrics   *metrics.Recorder
	logger    *slog.Logger

	mu         sync.Mutex
	snapshots  map[string]*memory.Memory
	busy       map[string]struct{}
	submitting bool

	// submitted maps a caller's submission token to the memory it created.
	submitted map[string]string
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Service == nil {
		return nil, errors.New("pipeline requires a processing service")
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	return &Orchestrator{
		svc:       cfg.Service,
		publisher: publisher,
		metrics:   cfg.Metrics,
		logger:    logger.OrNop(cfg.Logger),
		snapshots: make(map[string]*memory.Memory),
		busy:      make(map[string]struct{}),
		submitted: make(map[string]string),
	}, nil
}

// SubmitOption configures a single Submit call.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	token string
}

// WithSubmissionToken makes Submit at-most-once per token: a repeat call
// with a token that already produced a memory returns that memory without
// uploading again.
func WithSubmissionToken(token string) SubmitOption {
	return func(o *submitOptions) {
		o.token = token
	}
}

// Submit uploads staged media and returns the new memory's snapshot at
// status uploaded. Empty media fails with a ValidationError before any
// network call. Only one submission may be in flight at a time.
func (o *Orchestrator) Submit(ctx context.Context, media memory.Media, opts ...SubmitOption) (memory.Memory, error) {
	options := &submitOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if media.IsEmpty() {
		return memory.Memory{}, &memory.ValidationError{Field: "media", Reason: "at least one photo, video, or audio is required"}
	}

	o.mu.Lock()
	if id, ok := o.submitted[options.token]; ok && options.token != "" {
		snap := o.snapshotLocked(id)
		o.mu.Unlock()
		o.logger.Info("submission already completed", "token", options.token, "memory_id", id)
		return snap, nil
	}
	if o.submitting {
		o.mu.Unlock()
		o.metrics.ObserveStage(memory.StageUpload, 0, memory.ErrBusy)
		return memory.Memory{}, fmt.Errorf("submitting: %w", memory.ErrBusy)
	}
	o.submitting = true
	o.mu.Unlock()

	defer o.metrics.TrackInflight()()
	defer func() {
		o.mu.Lock()
		o.submitting = false
		o.mu.Unlock()
	}()

	start := time.Now()
	id, err := o.svc.Upload(ctx, media)
	err = asRemote(memory.StageUpload, err)
	if err == nil && id == "" {
		err = &memory.RemoteError{Stage: memory.StageUpload, Err: errors.New("service returned an empty memory id")}
	}

	if err == nil {
		o.mu.Lock()
		o.snapshots[id] = &memory.Memory{ID: id, Images: []string{}}
		if options.token != "" {
			o.submitted[options.token] = id
		}
		o.mu.Unlock()
	}

	o.observe(ctx, id, memory.StageUpload, start, err)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("submitting: %w", err)
	}

	return o.snapshot(id), nil
}

// SubmitAndEnrich submits media and immediately runs enrichment. When
// enrichment fails the memory still exists; the returned snapshot is at
// status uploaded and the error carries the failed stage.
func (o *Orchestrator) SubmitAndEnrich(ctx context.Context, media memory.Media, opts ...SubmitOption) (memory.Memory, error) {
	snap, err := o.Submit(ctx, media, opts...)
	if err != nil {
		return memory.Memory{}, err
	}

	enriched, err := o.RunEnrichment(ctx, snap.ID)
	if err != nil {
		return o.snapshot(snap.ID), err
	}
	return enriched, nil
}

// RunEnrichment runs process then detect faces. Both must succeed for the
// memory to reach faces-detected; a failure at either leaves the snapshot
// untouched. Re-running replaces the face list.
func (o *Orchestrator) RunEnrichment(ctx context.Context, memoryID string) (memory.Memory, error) {
	release, err := o.acquire(memoryID, memory.StageProcess)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("enriching %s: %w", memoryID, err)
	}
	defer release()

	if err := o.load(ctx, memoryID); err != nil {
		return memory.Memory{}, fmt.Errorf("enriching %s: %w", memoryID, err)
	}

	start := time.Now()
	err = asRemote(memory.StageProcess, o.svc.Process(ctx, memoryID))
	o.observe(ctx, memoryID, memory.StageProcess, start, err)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("enriching %s: %w", memoryID, err)
	}

	start = time.Now()
	faces, err := o.svc.DetectFaces(ctx, memoryID)
	err = asRemote(memory.StageDetectFaces, err)
	if err == nil {
		if faces == nil {
			faces = []memory.Face{}
		}
		o.update(memoryID, func(m *memory.Memory) {
			m.Faces = memory.Some(faces)
		})
	}
	o.observe(ctx, memoryID, memory.StageDetectFaces, start, err)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("enriching %s: %w", memoryID, err)
	}

	return o.snapshot(memoryID), nil
}

// TagFaces labels face crops. Tags whose label is blank after trimming are
// dropped and those crops stay unlabeled. When nothing remains the call is a
// no-op that makes no network request.
func (o *Orchestrator) TagFaces(ctx context.Context, memoryID string, tags []memory.FaceTag) (memory.Memory, error) {
	labeled := make([]memory.FaceTag, 0, len(tags))
	for _, t := range tags {
		label := strings.TrimSpace(t.Label)
		if label == "" || t.CropFile == "" {
			continue
		}
		labeled = append(labeled, memory.FaceTag{CropFile: t.CropFile, Label: label})
	}

	if len(labeled) == 0 {
		o.logger.Debug("no labeled faces to tag", "memory_id", memoryID)
		if snap, ok := o.Snapshot(memoryID); ok {
			return snap, nil
		}
		return memory.Memory{ID: memoryID}, nil
	}

	release, err := o.acquire(memoryID, memory.StageTagFaces)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("tagging %s: %w", memoryID, err)
	}
	defer release()

	if err := o.load(ctx, memoryID); err != nil {
		return memory.Memory{}, fmt.Errorf("tagging %s: %w", memoryID, err)
	}

	start := time.Now()
	err = asRemote(memory.StageTagFaces, o.svc.TagFaces(ctx, memoryID, labeled))
	if err == nil {
		byCrop := make(map[string]string, len(labeled))
		for _, t := range labeled {
			byCrop[t.CropFile] = t.Label
		}
		o.update(memoryID, func(m *memory.Memory) {
			faces, ok := m.Faces.Get()
			if !ok {
				return
			}
			updated := make([]memory.Face, len(faces))
			for i, f := range faces {
				if label, ok := byCrop[f.CropFile]; ok {
					f.Label = memory.Some(label)
				}
				updated[i] = f
			}
			m.Faces = memory.Some(updated)
		})
	}
	o.observe(ctx, memoryID, memory.StageTagFaces, start, err)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("tagging %s: %w", memoryID, err)
	}

	return o.snapshot(memoryID), nil
}

// GenerateAndNarrate generates the story and then, only if that succeeded,
// narrates it. Every call regenerates the story, even when one exists.
//
// When generation succeeds and narration fails, the story is kept and the
// returned snapshot carries it alongside the narrate error. A narration of a
// previous story is dropped as soon as the new story lands. Re-invoking is
// the way to retry narration.
func (o *Orchestrator) GenerateAndNarrate(ctx context.Context, memoryID string) (memory.Memory, error) {
	release, err := o.acquire(memoryID, memory.StageGenerateStory)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("generating story for %s: %w", memoryID, err)
	}
	defer release()

	if err := o.load(ctx, memoryID); err != nil {
		return memory.Memory{}, fmt.Errorf("generating story for %s: %w", memoryID, err)
	}

	start := time.Now()
	story, err := o.svc.GenerateStory(ctx, memoryID)
	err = asRemote(memory.StageGenerateStory, err)
	if err == nil && strings.TrimSpace(story) == "" {
		err = &memory.RemoteError{Stage: memory.StageGenerateStory, Err: errors.New("service returned an empty story")}
	}
	if err == nil {
		o.update(memoryID, func(m *memory.Memory) {
			m.Story = memory.Some(story)
			// Any earlier narration was spoken from the replaced story.
			m.NarrationAudio = memory.None[string]()
		})
	}
	o.observe(ctx, memoryID, memory.StageGenerateStory, start, err)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("generating story for %s: %w", memoryID, err)
	}

	start = time.Now()
	ref, err := o.svc.Narrate(ctx, memoryID)
	err = asRemote(memory.StageNarrate, err)
	if err == nil && ref == "" {
		err = &memory.RemoteError{Stage: memory.StageNarrate, Err: errors.New("service returned an empty audio ref")}
	}
	if err == nil {
		o.update(memoryID, func(m *memory.Memory) {
			m.NarrationAudio = memory.Some(ref)
		})
	}
	o.observe(ctx, memoryID, memory.StageNarrate, start, err)
	if err != nil {
		return o.snapshot(memoryID), fmt.Errorf("narrating %s: %w", memoryID, err)
	}

	return o.snapshot(memoryID), nil
}

// Refresh replaces the cached snapshot with the service's. Fields are never
// merged; on failure the cache is left as it was.
func (o *Orchestrator) Refresh(ctx context.Context, memoryID string) (memory.Memory, error) {
	start := time.Now()
	fresh, err := o.svc.GetMemory(ctx, memoryID)
	err = asRemote(memory.StageGetMemory, err)
	if err == nil && fresh == nil {
		err = &memory.RemoteError{Stage: memory.StageGetMemory, Err: errors.New("service returned no memory")}
	}
	if err == nil {
		replacement := fresh.Clone()
		replacement.ID = memoryID
		o.mu.Lock()
		o.snapshots[memoryID] = &replacement
		o.mu.Unlock()
	}
	o.observe(ctx, memoryID, memory.StageGetMemory, start, err)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("refreshing %s: %w", memoryID, err)
	}

	return o.snapshot(memoryID), nil
}

// Embed asks the service to reindex a memory for search.
func (o *Orchestrator) Embed(ctx context.Context, memoryID string) error {
	start := time.Now()
	err := asRemote(memory.StageEmbed, o.svc.Embed(ctx, memoryID))
	o.observe(ctx, memoryID, memory.StageEmbed, start, err)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", memoryID, err)
	}
	return nil
}

// Snapshot returns a copy of the cached memory.
func (o *Orchestrator) Snapshot(memoryID string) (memory.Memory, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, ok := o.snapshots[memoryID]
	if !ok {
		return memory.Memory{}, false
	}
	return m.Clone(), true
}

// Busy reports whether an operation on memoryID is in flight.
func (o *Orchestrator) Busy(memoryID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, ok := o.busy[memoryID]
	return ok
}

// Forget drops a cached snapshot.
func (o *Orchestrator) Forget(memoryID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.snapshots, memoryID)
}

// acquire claims the per-memory guard. The returned func releases it.
func (o *Orchestrator) acquire(memoryID string, stage memory.Stage) (func(), error) {
	o.mu.Lock()
	if _, ok := o.busy[memoryID]; ok {
		o.mu.Unlock()
		o.metrics.ObserveStage(stage, 0, memory.ErrBusy)
		o.logger.Debug("operation rejected, memory busy", "memory_id", memoryID, "stage", stage)
		return nil, memory.ErrBusy
	}
	o.busy[memoryID] = struct{}{}
	o.mu.Unlock()

	done := o.metrics.TrackInflight()
	return func() {
		done()
		o.mu.Lock()
		delete(o.busy, memoryID)
		o.mu.Unlock()
	}, nil
}

// load caches the service's snapshot of memoryID when none is held yet, so
// stage results are applied on top of the authoritative state. Callers hold
// the memory's guard.
func (o *Orchestrator) load(ctx context.Context, memoryID string) error {
	if _, ok := o.Snapshot(memoryID); ok {
		return nil
	}
	_, err := o.Refresh(ctx, memoryID)
	return err
}

// update mutates the cached snapshot for memoryID. It never creates one: a
// memory the orchestrator has not fetched has no local state to advance.
func (o *Orchestrator) update(memoryID string, fn func(m *memory.Memory)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, ok := o.snapshots[memoryID]
	if !ok {
		o.logger.Debug("no cached snapshot to update", "memory_id", memoryID)
		return
	}
	fn(m)
}

func (o *Orchestrator) snapshot(memoryID string) memory.Memory {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked(memoryID)
}

func (o *Orchestrator) snapshotLocked(memoryID string) memory.Memory {
	m, ok := o.snapshots[memoryID]
	if !ok {
		return memory.Memory{ID: memoryID, Images: []string{}}
	}
	return m.Clone()
}

// observe logs, records, and publishes the outcome of one stage attempt.
func (o *Orchestrator) observe(ctx context.Context, memoryID string, stage memory.Stage, start time.Time, err error) {
	elapsed := time.Since(start)
	o.metrics.ObserveStage(stage, elapsed, err)

	var status memory.Status
	if memoryID != "" {
		snap := o.snapshot(memoryID)
		status = snap.Status()
	}

	if err != nil {
		o.logger.Warn("stage failed",
			"stage", stage,
			"memory_id", memoryID,
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		o.logger.Info("stage completed",
			"stage", stage,
			"memory_id", memoryID,
			"status", status,
			"elapsed", elapsed,
		)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := eventstream.NewStageEvent(memoryID, stage, status, elapsed, err)
	if pubErr := o.publisher.PublishStage(pubCtx, event); pubErr != nil {
		o.logger.Warn("failed to publish stage event",
			"stage", stage,
			"memory_id", memoryID,
			"error", pubErr,
		)
	}
}

// asRemote guarantees every service failure is a stage-tagged RemoteError.
func asRemote(stage memory.Stage, err error) error {
	if err == nil {
		return nil
	}
	var remoteErr *memory.RemoteError
	if errors.As(err, &remoteErr) {
		return err
	}
	return &memory.RemoteError{Stage: stage, Err: err}
}
