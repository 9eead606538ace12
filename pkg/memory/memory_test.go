package memory_test

import (
	"encoding/json"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

var _ = Describe("DeriveStatus", func() {
	faces := memory.Some([]memory.Face{{CropFile: "a.jpg"}})
	noFaces := memory.None[[]memory.Face]()
	story := memory.Some("a sunny afternoon")
	noStory := memory.None[string]()
	audio := memory.Some("/files/m1/tts/story.wav")
	noAudio := memory.None[string]()

	DescribeTable("is a pure function of faces, story and narration",
		func(f memory.Optional[[]memory.Face], s, n memory.Optional[string], expected memory.Status) {
			Expect(memory.DeriveStatus(f, s, n)).To(Equal(expected))
			// Same inputs, same answer.
			Expect(memory.DeriveStatus(f, s, n)).To(Equal(expected))
		},
		Entry("nothing populated", noFaces, noStory, noAudio, memory.StatusUploaded),
		Entry("faces only", faces, noStory, noAudio, memory.StatusFacesDetected),
		Entry("faces and story", faces, story, noAudio, memory.StatusStoryGenerated),
		Entry("everything", faces, story, audio, memory.StatusComplete),
		Entry("story without faces", noFaces, story, noAudio, memory.StatusStoryGenerated),
		Entry("narration without story", faces, noStory, audio, memory.StatusComplete),
		Entry("narration alone", noFaces, noStory, audio, memory.StatusComplete),
		Entry("story and narration without faces", noFaces, story, audio, memory.StatusComplete),
	)

	It("treats an empty detected face list as faces-detected", func() {
		Expect(memory.DeriveStatus(memory.Some([]memory.Face{}), noStory, noAudio)).To(Equal(memory.StatusFacesDetected))
	})

	It("ranks statuses in pipeline order", func() {
		Expect(memory.StatusUploaded.Rank()).To(BeNumerically("<", memory.StatusFacesDetected.Rank()))
		Expect(memory.StatusFacesDetected.Rank()).To(BeNumerically("<", memory.StatusStoryGenerated.Rank()))
		Expect(memory.StatusStoryGenerated.Rank()).To(BeNumerically("<", memory.StatusComplete.Rank()))
	})
})

var _ = Describe("Optional", func() {
	It("distinguishes absent from the zero value", func() {
		empty := memory.Some("")
		Expect(empty.IsSet()).To(BeTrue())
		Expect(memory.None[string]().IsSet()).To(BeFalse())
		Expect(memory.None[string]().OrElse("fallback")).To(Equal("fallback"))
	})

	It("decodes null and missing fields as absent", func() {
		var face memory.Face
		Expect(json.Unmarshal([]byte(`{"crop_file":"a.jpg","label":null}`), &face)).To(Succeed())
		Expect(face.Label.IsSet()).To(BeFalse())

		face = memory.Face{}
		Expect(json.Unmarshal([]byte(`{"crop_file":"a.jpg"}`), &face)).To(Succeed())
		Expect(face.Label.IsSet()).To(BeFalse())

		face = memory.Face{}
		Expect(json.Unmarshal([]byte(`{"crop_file":"a.jpg","label":"Mom"}`), &face)).To(Succeed())
		label, ok := face.Label.Get()
		Expect(ok).To(BeTrue())
		Expect(label).To(Equal("Mom"))
	})

	It("encodes absent as null", func() {
		data, err := json.Marshal(memory.Face{CropFile: "a.jpg"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"label":null`))
	})
})

var _ = Describe("Memory", func() {
	It("derives its status from its fields", func() {
		m := memory.Memory{ID: "m1"}
		Expect(m.Status()).To(Equal(memory.StatusUploaded))

		m.Faces = memory.Some([]memory.Face{})
		Expect(m.Status()).To(Equal(memory.StatusFacesDetected))
	})

	It("clones without sharing face slices", func() {
		m := memory.Memory{
			ID:     "m1",
			Images: []string{"/files/m1/images/a.jpg"},
			Faces:  memory.Some([]memory.Face{{CropFile: "a.jpg"}}),
		}

		clone := m.Clone()
		faces, _ := clone.Faces.Get()
		faces[0].Label = memory.Some("Mom")
		clone.Images[0] = "changed"

		original, _ := m.Faces.Get()
		Expect(original[0].Label.IsSet()).To(BeFalse())
		Expect(m.Images[0]).To(Equal("/files/m1/images/a.jpg"))
	})
})

var _ = Describe("Media", func() {
	It("is empty with no files", func() {
		Expect(memory.Media{}.IsEmpty()).To(BeTrue())
		Expect(memory.Media{}.Count()).To(Equal(0))
	})

	It("is not empty with only an audio clip", func() {
		m := memory.Media{Audio: memory.Some(memory.MediaFile{Path: "/tmp/a.mp3"})}
		Expect(m.IsEmpty()).To(BeFalse())
		Expect(m.Count()).To(Equal(1))
	})
})

var _ = Describe("Errors", func() {
	It("finds the failed stage through wrapping", func() {
		err := fmt.Errorf("running enrichment: %w", &memory.RemoteError{Stage: memory.StageProcess, StatusCode: 500})
		stage, ok := memory.StageOf(err)
		Expect(ok).To(BeTrue())
		Expect(stage).To(Equal(memory.StageProcess))
		Expect(err.Error()).To(ContainSubstring("process failed: service returned status 500"))
	})

	It("reports no stage for non-remote errors", func() {
		_, ok := memory.StageOf(&memory.ValidationError{Field: "media", Reason: "empty"})
		Expect(ok).To(BeFalse())
	})

	It("unwraps playback errors", func() {
		cause := errors.New("device busy")
		err := &memory.PlaybackError{Op: "load", Ref: "/a.wav", Err: cause}
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(Equal("playback load /a.wav: device busy"))
	})
})
