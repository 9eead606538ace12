package pipeline_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/memorypalace/pkg/eventstream"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/metrics"
	"github.com/papercomputeco/memorypalace/pkg/pipeline"
	testutils "github.com/papercomputeco/memorypalace/pkg/utils/test"
)

// metricValue reads a counter or gauge sample from reg, or 0 when absent.
func metricValue(reg *prometheus.Registry, name string, labels map[string]string) float64 {
	families, err := reg.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	samples:
		for _, m := range family.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue samples
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func stageCount(rec *metrics.Recorder, stage memory.Stage, outcome string) float64 {
	return metricValue(rec.Registry(), "palace_stage_executions_total", map[string]string{"stage": string(stage), "outcome": outcome})
}

func inflight(rec *metrics.Recorder) float64 {
	return metricValue(rec.Registry(), "palace_operations_inflight", nil)
}

func photos(names ...string) memory.Media {
	media := memory.Media{}
	for _, n := range names {
		media.Photos = append(media.Photos, memory.MediaFile{Path: "/tmp/" + n, Name: n, MIMEType: "image/jpeg"})
	}
	return media
}

var _ = Describe("Orchestrator", func() {
	var (
		svc  *testutils.MockService
		pub  *testutils.MockPublisher
		rec  *metrics.Recorder
		orch *pipeline.Orchestrator
		ctx  context.Context
	)

	BeforeEach(func() {
		svc = testutils.NewMockService()
		svc.UploadIDs = []string{"m1", "m2"}
		svc.Faces = []memory.Face{
			{CropFile: "a.jpg", URL: "/files/m1/faces/a.jpg"},
			{CropFile: "b.jpg", URL: "/files/m1/faces/b.jpg"},
		}
		pub = testutils.NewMockPublisher()
		rec = metrics.NewRecorder()
		ctx = context.Background()

		var err error
		orch, err = pipeline.New(pipeline.Config{Service: svc, Publisher: pub, Metrics: rec})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a service", func() {
		_, err := pipeline.New(pipeline.Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Submit", func() {
		It("rejects empty media without calling the service", func() {
			_, err := orch.Submit(ctx, memory.Media{Note: memory.Some("just words")})

			var validationErr *memory.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(svc.Calls()).To(BeEmpty())
			Expect(pub.Events()).To(BeEmpty())
		})

		It("returns an uploaded snapshot", func() {
			snap, err := orch.Submit(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.ID).To(Equal("m1"))
			Expect(snap.Status()).To(Equal(memory.StatusUploaded))

			cached, ok := orch.Snapshot("m1")
			Expect(ok).To(BeTrue())
			Expect(cached.ID).To(Equal("m1"))
		})

		It("reports an upload failure with its stage", func() {
			svc.Fail[memory.StageUpload] = errors.New("connection refused")

			_, err := orch.Submit(ctx, photos("beach.jpg"))
			stage, ok := memory.StageOf(err)
			Expect(ok).To(BeTrue())
			Expect(stage).To(Equal(memory.StageUpload))
			Expect(err.Error()).To(HavePrefix("submitting:"))
		})

		It("uploads at most once per submission token", func() {
			first, err := orch.Submit(ctx, photos("beach.jpg"), pipeline.WithSubmissionToken("tok-1"))
			Expect(err).NotTo(HaveOccurred())

			second, err := orch.Submit(ctx, photos("beach.jpg"), pipeline.WithSubmissionToken("tok-1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(svc.Uploads()).To(HaveLen(1))

			third, err := orch.Submit(ctx, photos("beach.jpg"), pipeline.WithSubmissionToken("tok-2"))
			Expect(err).NotTo(HaveOccurred())
			Expect(third.ID).To(Equal("m2"))
		})

		It("rejects a second submission while one is in flight", func() {
			gate := make(chan struct{})
			svc.Gate[memory.StageUpload] = gate
			svc.Entered = make(chan memory.Stage, 1)

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := orch.Submit(ctx, photos("a.jpg"))
				done <- err
			}()
			Eventually(svc.Entered).Should(Receive(Equal(memory.StageUpload)))

			_, err := orch.Submit(ctx, photos("b.jpg"))
			Expect(err).To(MatchError(memory.ErrBusy))
			Expect(inflight(rec)).To(BeNumerically("==", 1))

			close(gate)
			Eventually(done).Should(Receive(BeNil()))
			Expect(svc.Uploads()).To(HaveLen(1))
			Expect(inflight(rec)).To(BeNumerically("==", 0))
		})
	})

	Describe("RunEnrichment", func() {
		BeforeEach(func() {
			_, err := orch.Submit(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("processes then detects faces", func() {
			snap, err := orch.RunEnrichment(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Status()).To(Equal(memory.StatusFacesDetected))

			faces, ok := snap.Faces.Get()
			Expect(ok).To(BeTrue())
			Expect(faces).To(HaveLen(2))
			Expect(faces[0].Label.IsSet()).To(BeFalse())

			Expect(svc.Calls()).To(Equal([]string{"upload", "process:m1", "detect_faces:m1"}))
		})

		It("treats an empty detection as faces detected", func() {
			svc.Faces = []memory.Face{}

			snap, err := orch.RunEnrichment(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Status()).To(Equal(memory.StatusFacesDetected))
		})

		It("stops at a process failure and never detects", func() {
			svc.Fail[memory.StageProcess] = errors.New("boom")

			_, err := orch.RunEnrichment(ctx, "m1")
			stage, _ := memory.StageOf(err)
			Expect(stage).To(Equal(memory.StageProcess))
			Expect(svc.Calls()).NotTo(ContainElement("detect_faces:m1"))

			snap, _ := orch.Snapshot("m1")
			Expect(snap.Status()).To(Equal(memory.StatusUploaded))
		})

		It("leaves the status at uploaded when detection fails", func() {
			svc.Fail[memory.StageDetectFaces] = errors.New("model crashed")

			_, err := orch.RunEnrichment(ctx, "m1")
			stage, _ := memory.StageOf(err)
			Expect(stage).To(Equal(memory.StageDetectFaces))

			snap, _ := orch.Snapshot("m1")
			Expect(snap.Faces.IsSet()).To(BeFalse())
		})

		It("replaces faces when re-run", func() {
			_, err := orch.RunEnrichment(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())

			svc.Faces = []memory.Face{{CropFile: "c.jpg"}}
			snap, err := orch.RunEnrichment(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())

			faces, _ := snap.Faces.Get()
			Expect(faces).To(ConsistOf(HaveField("CropFile", "c.jpg")))
		})
	})

	Describe("TagFaces", func() {
		BeforeEach(func() {
			_, err := orch.SubmitAndEnrich(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("drops blank labels and trims the rest", func() {
			snap, err := orch.TagFaces(ctx, "m1", []memory.FaceTag{
				{CropFile: "a.jpg", Label: "  "},
				{CropFile: "b.jpg", Label: " Mom "},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Tagged()).To(Equal([][]memory.FaceTag{{{CropFile: "b.jpg", Label: "Mom"}}}))

			faces, _ := snap.Faces.Get()
			Expect(faces[0].Label.IsSet()).To(BeFalse())
			Expect(faces[1].Label.OrElse("")).To(Equal("Mom"))
			Expect(snap.Status()).To(Equal(memory.StatusFacesDetected))
		})

		It("is a no-op when every label is blank", func() {
			before := len(svc.Calls())

			_, err := orch.TagFaces(ctx, "m1", []memory.FaceTag{{CropFile: "a.jpg", Label: ""}})
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.Calls()).To(HaveLen(before))
		})

		It("keeps labels unchanged when tagging fails", func() {
			svc.Fail[memory.StageTagFaces] = errors.New("disk full")

			_, err := orch.TagFaces(ctx, "m1", []memory.FaceTag{{CropFile: "a.jpg", Label: "Dad"}})
			stage, _ := memory.StageOf(err)
			Expect(stage).To(Equal(memory.StageTagFaces))

			snap, _ := orch.Snapshot("m1")
			faces, _ := snap.Faces.Get()
			Expect(faces[0].Label.IsSet()).To(BeFalse())
		})
	})

	Describe("GenerateAndNarrate", func() {
		BeforeEach(func() {
			_, err := orch.SubmitAndEnrich(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("completes the memory", func() {
			snap, err := orch.GenerateAndNarrate(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Story.OrElse("")).To(Equal(svc.Story))
			Expect(snap.NarrationAudio.OrElse("")).To(Equal(svc.AudioURL))
			Expect(snap.Status()).To(Equal(memory.StatusComplete))
		})

		It("keeps the story when narration fails", func() {
			svc.Fail[memory.StageNarrate] = errors.New("tts offline")

			snap, err := orch.GenerateAndNarrate(ctx, "m1")
			stage, _ := memory.StageOf(err)
			Expect(stage).To(Equal(memory.StageNarrate))
			Expect(snap.Story.IsSet()).To(BeTrue())
			Expect(snap.NarrationAudio.IsSet()).To(BeFalse())
			Expect(snap.Status()).To(Equal(memory.StatusStoryGenerated))
		})

		It("never narrates when generation fails", func() {
			svc.Fail[memory.StageGenerateStory] = errors.New("llm timeout")

			_, err := orch.GenerateAndNarrate(ctx, "m1")
			stage, _ := memory.StageOf(err)
			Expect(stage).To(Equal(memory.StageGenerateStory))
			Expect(svc.Calls()).NotTo(ContainElement("narrate:m1"))

			snap, _ := orch.Snapshot("m1")
			Expect(snap.Status()).To(Equal(memory.StatusFacesDetected))
		})

		It("regenerates the story on every call", func() {
			_, err := orch.GenerateAndNarrate(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())

			svc.Story = "A rainy day at the lake."
			snap, err := orch.GenerateAndNarrate(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.GenerateCount()).To(Equal(2))
			Expect(snap.Story.OrElse("")).To(Equal("A rainy day at the lake."))
		})

		It("drops the old narration when a new story fails to narrate", func() {
			_, err := orch.GenerateAndNarrate(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())

			svc.Story = "A rainy day at the lake."
			svc.Fail[memory.StageNarrate] = errors.New("tts offline")
			snap, err := orch.GenerateAndNarrate(ctx, "m1")
			Expect(err).To(HaveOccurred())
			Expect(snap.Story.OrElse("")).To(Equal("A rainy day at the lake."))
			Expect(snap.NarrationAudio.IsSet()).To(BeFalse())
			Expect(snap.Status()).To(Equal(memory.StatusStoryGenerated))
		})
	})

	Describe("overlapping operations", func() {
		var gate chan struct{}

		BeforeEach(func() {
			_, err := orch.Submit(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.Submit(ctx, photos("lake.jpg"))
			Expect(err).NotTo(HaveOccurred())

			gate = make(chan struct{})
			svc.Gate[memory.StageProcess] = gate
			svc.Entered = make(chan memory.Stage, 1)
		})

		It("rejects a second operation on the same memory", func() {
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := orch.RunEnrichment(ctx, "m1")
				done <- err
			}()
			Eventually(svc.Entered).Should(Receive())
			Expect(orch.Busy("m1")).To(BeTrue())

			_, err := orch.RunEnrichment(ctx, "m1")
			Expect(err).To(MatchError(memory.ErrBusy))
			_, err = orch.GenerateAndNarrate(ctx, "m1")
			Expect(err).To(MatchError(memory.ErrBusy))
			_, err = orch.TagFaces(ctx, "m1", []memory.FaceTag{{CropFile: "a.jpg", Label: "Mom"}})
			Expect(err).To(MatchError(memory.ErrBusy))

			// Other memories are unaffected.
			_, err = orch.GenerateAndNarrate(ctx, "m2")
			Expect(err).NotTo(HaveOccurred())

			close(gate)
			Eventually(done).Should(Receive(BeNil()))
			Expect(orch.Busy("m1")).To(BeFalse())
			Expect(stageCount(rec, memory.StageProcess, metrics.OutcomeRejected)).To(BeNumerically("==", 1))
		})
	})

	Describe("on a memory it has not cached", func() {
		BeforeEach(func() {
			svc.Seed(memory.Memory{
				ID:             "m7",
				Images:         []string{"/files/m7/images/a.jpg"},
				Faces:          memory.Some([]memory.Face{{CropFile: "a.jpg", URL: "/files/m7/faces/a.jpg"}}),
				Story:          memory.Some("Grandma's birthday."),
				NarrationAudio: memory.Some("/files/m7/narration.mp3"),
			})
		})

		It("loads the memory before tagging", func() {
			snap, err := orch.TagFaces(ctx, "m7", []memory.FaceTag{{CropFile: "a.jpg", Label: "Grandma"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.Calls()).To(Equal([]string{"get_memory:m7", "tag_faces:m7"}))

			faces, _ := snap.Faces.Get()
			Expect(faces[0].Label.OrElse("")).To(Equal("Grandma"))
			Expect(snap.Images).To(ConsistOf("/files/m7/images/a.jpg"))
			Expect(snap.Status()).To(Equal(memory.StatusComplete))
		})

		It("keeps the story and narration when enrichment re-runs", func() {
			snap, err := orch.RunEnrichment(ctx, "m7")
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.Calls()).To(Equal([]string{"get_memory:m7", "process:m7", "detect_faces:m7"}))
			Expect(snap.Story.OrElse("")).To(Equal("Grandma's birthday."))
			Expect(snap.Status()).To(Equal(memory.StatusComplete))
		})

		It("keeps the images when the story is regenerated", func() {
			snap, err := orch.GenerateAndNarrate(ctx, "m7")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Images).To(ConsistOf("/files/m7/images/a.jpg"))
			Expect(snap.Faces.IsSet()).To(BeTrue())
			Expect(snap.Status()).To(Equal(memory.StatusComplete))
		})

		It("runs no stage when loading fails", func() {
			svc.Fail[memory.StageGetMemory] = errors.New("timeout")

			_, err := orch.TagFaces(ctx, "m7", []memory.FaceTag{{CropFile: "a.jpg", Label: "Grandma"}})
			stage, _ := memory.StageOf(err)
			Expect(stage).To(Equal(memory.StageGetMemory))
			Expect(svc.Calls()).To(Equal([]string{"get_memory:m7"}))
			Expect(svc.Tagged()).To(BeEmpty())

			_, ok := orch.Snapshot("m7")
			Expect(ok).To(BeFalse())
			Expect(orch.Busy("m7")).To(BeFalse())
		})

		It("does not cache anything for a blank tag request", func() {
			snap, err := orch.TagFaces(ctx, "m7", []memory.FaceTag{{CropFile: "a.jpg", Label: " "}})
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.ID).To(Equal("m7"))
			Expect(svc.Calls()).To(BeEmpty())

			_, ok := orch.Snapshot("m7")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Refresh", func() {
		It("replaces the cached snapshot", func() {
			svc.Seed(memory.Memory{
				ID:     "m9",
				Images: []string{"/files/m9/images/a.jpg"},
				Faces:  memory.Some([]memory.Face{{CropFile: "a.jpg", Label: memory.Some("Mom")}}),
				Story:  memory.Some("Grandma's birthday."),
			})

			snap, err := orch.Refresh(ctx, "m9")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Status()).To(Equal(memory.StatusStoryGenerated))
			Expect(snap.Images).To(ConsistOf("/files/m9/images/a.jpg"))

			svc.Seed(memory.Memory{ID: "m9", Images: []string{}})
			snap, err = orch.Refresh(ctx, "m9")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Story.IsSet()).To(BeFalse())
			Expect(snap.Status()).To(Equal(memory.StatusUploaded))
		})

		It("leaves the cache untouched on failure", func() {
			_, err := orch.SubmitAndEnrich(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())

			svc.Fail[memory.StageGetMemory] = errors.New("timeout")
			_, err = orch.Refresh(ctx, "m1")
			Expect(err).To(HaveOccurred())

			snap, ok := orch.Snapshot("m1")
			Expect(ok).To(BeTrue())
			Expect(snap.Status()).To(Equal(memory.StatusFacesDetected))
		})
	})

	It("drives a memory end to end", func() {
		snap, err := orch.SubmitAndEnrich(ctx, photos("beach.jpg", "cake.jpg"))
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.ID).To(Equal("m1"))
		Expect(snap.Status()).To(Equal(memory.StatusFacesDetected))

		_, err = orch.TagFaces(ctx, "m1", []memory.FaceTag{{CropFile: "a.jpg", Label: "Mom"}})
		Expect(err).NotTo(HaveOccurred())

		_, err = orch.GenerateAndNarrate(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())

		Expect(orch.Embed(ctx, "m1")).To(Succeed())

		snap, err = orch.Refresh(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Status()).To(Equal(memory.StatusComplete))
		Expect(snap.Images).To(HaveLen(2))

		faces, _ := snap.Faces.Get()
		Expect(faces[0].Label.OrElse("")).To(Equal("Mom"))

		Expect(svc.Calls()).To(Equal([]string{
			"upload",
			"process:m1",
			"detect_faces:m1",
			"tag_faces:m1",
			"generate_story:m1",
			"narrate:m1",
			"embed:m1",
			"get_memory:m1",
		}))
	})

	Describe("stage events", func() {
		It("publishes one event per stage attempt", func() {
			svc.Fail[memory.StageDetectFaces] = errors.New("model crashed")

			_, err := orch.SubmitAndEnrich(ctx, photos("beach.jpg"))
			Expect(err).To(HaveOccurred())

			events := pub.Events()
			Expect(events).To(HaveLen(3))
			Expect(events[0].Stage).To(Equal(memory.StageUpload))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeStageCompleted))
			Expect(events[0].MemoryID).To(Equal("m1"))
			Expect(events[1].Stage).To(Equal(memory.StageProcess))
			Expect(events[2].Stage).To(Equal(memory.StageDetectFaces))
			Expect(events[2].EventType).To(Equal(eventstream.EventTypeStageFailed))
			Expect(events[2].Status).To(Equal(memory.StatusUploaded))
			Expect(events[2].Error).To(ContainSubstring("model crashed"))
		})

		It("does not fail a stage when publishing fails", func() {
			pub.FailWith = errors.New("broker down")

			snap, err := orch.SubmitAndEnrich(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Status()).To(Equal(memory.StatusFacesDetected))
		})

		It("records stage outcomes", func() {
			_, err := orch.SubmitAndEnrich(ctx, photos("beach.jpg"))
			Expect(err).NotTo(HaveOccurred())

			Expect(stageCount(rec, memory.StageUpload, metrics.OutcomeSuccess)).To(BeNumerically("==", 1))
			Expect(stageCount(rec, memory.StageDetectFaces, metrics.OutcomeSuccess)).To(BeNumerically("==", 1))
		})
	})
})
