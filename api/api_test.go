package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memorypalace/api/mcp"
	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/metrics"
	"github.com/papercomputeco/memorypalace/pkg/pipeline"
	"github.com/papercomputeco/memorypalace/pkg/playback"
	"github.com/papercomputeco/memorypalace/pkg/processing"
	"github.com/papercomputeco/memorypalace/pkg/search"
	testutils "github.com/papercomputeco/memorypalace/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		svc    *testutils.MockService
		loader *testutils.MockLoader
		orch   *pipeline.Orchestrator
		server *Server
		dir    string
	)

	BeforeEach(func() {
		svc = testutils.NewMockService()
		svc.UploadIDs = []string{"m1"}
		svc.Faces = []memory.Face{{CropFile: "a.jpg", URL: "/files/m1/faces/a.jpg"}}
		loader = testutils.NewMockLoader()
		rec := metrics.NewRecorder()

		var err error
		orch, err = pipeline.New(pipeline.Config{Service: svc, Metrics: rec})
		Expect(err).NotTo(HaveOccurred())

		searcher, err := search.NewExecutor(search.Config{Service: svc})
		Expect(err).NotTo(HaveOccurred())

		controller, err := playback.NewController(playback.Config{Loader: loader, Resolve: svc.ResolveURL, Metrics: rec})
		Expect(err).NotTo(HaveOccurred())

		mcpServer, err := mcp.NewServer(mcp.Config{Service: svc, Searcher: searcher, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{
			ListenAddr:   ":0",
			Orchestrator: orch,
			Service:      svc,
			Searcher:     searcher,
			Playback:     controller,
			MCP:          mcpServer.Handler(),
			Metrics:      rec,
		})
		Expect(err).NotTo(HaveOccurred())

		dir = GinkgoT().TempDir()
	})

	do := func(method, path string, body any) (*http.Response, []byte) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}

		req := httptest.NewRequest(method, path, reader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		out, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, out
	}

	decode := func(raw []byte, out any) {
		ExpectWithOffset(1, json.Unmarshal(raw, out)).To(Succeed())
	}

	writeFile := func(name string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte("\xff\xd8\xff\xe0fake jpeg"), 0o600)).To(Succeed())
		return path
	}

	It("requires its dependencies", func() {
		_, err := NewServer(Config{})
		Expect(err).To(HaveOccurred())
	})

	It("answers ping", func() {
		resp, body := do(http.MethodGet, "/ping", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	Describe("POST /v1/memories", func() {
		It("submits and enriches", func() {
			resp, body := do(http.MethodPost, "/v1/memories", SubmitRequest{Photos: []string{writeFile("beach.jpg")}})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var view processing.MemoryView
			decode(body, &view)
			Expect(view.ID).To(Equal("m1"))
			Expect(view.Status).To(Equal(memory.StatusFacesDetected))
			Expect(view.Faces[0].URL).To(Equal("http://processing.test/files/m1/faces/a.jpg"))
		})

		It("can skip enrichment", func() {
			enrich := false
			resp, body := do(http.MethodPost, "/v1/memories", SubmitRequest{Photos: []string{writeFile("beach.jpg")}, Enrich: &enrich})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var view processing.MemoryView
			decode(body, &view)
			Expect(view.Status).To(Equal(memory.StatusUploaded))
			Expect(svc.Calls()).To(Equal([]string{"upload"}))
		})

		It("rejects empty media with 400", func() {
			resp, body := do(http.MethodPost, "/v1/memories", SubmitRequest{Note: "no files"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var errResp ErrorResponse
			decode(body, &errResp)
			Expect(errResp.Field).To(Equal("media"))
			Expect(svc.Calls()).To(BeEmpty())
		})

		It("rejects missing files with 400", func() {
			resp, _ := do(http.MethodPost, "/v1/memories", SubmitRequest{Photos: []string{filepath.Join(dir, "missing.jpg")}})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(svc.Calls()).To(BeEmpty())
		})

		It("reports a failed enrichment stage with the uploaded memory", func() {
			svc.Fail[memory.StageProcess] = errors.New("whisper crashed")

			resp, body := do(http.MethodPost, "/v1/memories", SubmitRequest{Photos: []string{writeFile("beach.jpg")}})
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			var errResp ErrorResponse
			decode(body, &errResp)
			Expect(errResp.Stage).To(Equal(memory.StageProcess))
			Expect(errResp.Memory).NotTo(BeNil())
			Expect(errResp.Memory.Status).To(Equal(memory.StatusUploaded))
		})
	})

	Describe("memory operations", func() {
		BeforeEach(func() {
			_, err := orch.SubmitAndEnrich(context.Background(), memory.Media{
				Photos: []memory.MediaFile{{Path: "/tmp/a.jpg", Name: "a.jpg"}},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("serves the cached snapshot", func() {
			resp, body := do(http.MethodGet, "/v1/memories/m1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var view processing.MemoryView
			decode(body, &view)
			Expect(view.Status).To(Equal(memory.StatusFacesDetected))
			Expect(svc.Calls()).NotTo(ContainElement("get_memory:m1"))
		})

		It("refreshes on request", func() {
			resp, _ := do(http.MethodGet, "/v1/memories/m1?refresh=true", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(svc.Calls()).To(ContainElement("get_memory:m1"))
		})

		It("tags faces", func() {
			resp, body := do(http.MethodPost, "/v1/memories/m1/tags", []memory.FaceTag{
				{CropFile: "a.jpg", Label: "Grandpa"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var view processing.MemoryView
			decode(body, &view)
			Expect(*view.Faces[0].Label).To(Equal("Grandpa"))
		})

		It("generates and narrates", func() {
			resp, body := do(http.MethodPost, "/v1/memories/m1/story", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var view processing.MemoryView
			decode(body, &view)
			Expect(view.Status).To(Equal(memory.StatusComplete))
			Expect(*view.NarrationAudio).To(Equal("http://processing.test/files/tts/story.wav"))
		})

		It("returns the story when narration fails", func() {
			svc.Fail[memory.StageNarrate] = errors.New("tts offline")

			resp, body := do(http.MethodPost, "/v1/memories/m1/story", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			var errResp ErrorResponse
			decode(body, &errResp)
			Expect(errResp.Stage).To(Equal(memory.StageNarrate))
			Expect(errResp.Memory.Status).To(Equal(memory.StatusStoryGenerated))
		})

		It("maps a busy memory to 409", func() {
			gate := make(chan struct{})
			svc.Gate[memory.StageProcess] = gate
			svc.Entered = make(chan memory.Stage, 1)
			defer close(gate)

			go func() {
				defer GinkgoRecover()
				_, _ = orch.RunEnrichment(context.Background(), "m1")
			}()
			Eventually(svc.Entered).Should(Receive())

			resp, _ := do(http.MethodPost, "/v1/memories/m1/enrich", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("embeds", func() {
			resp, _ := do(http.MethodPost, "/v1/memories/m1/embed", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(svc.Calls()).To(ContainElement("embed:m1"))
		})

		It("lists memories", func() {
			resp, body := do(http.MethodGet, "/v1/memories", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var list ListResponse
			decode(body, &list)
			Expect(list.Count).To(Equal(1))
			Expect(list.Memories[0].ID).To(Equal("m1"))
		})
	})

	Describe("operations on a memory the server has not cached", func() {
		BeforeEach(func() {
			svc.Seed(memory.Memory{
				ID:             "m5",
				Images:         []string{"/files/m5/images/a.jpg"},
				Faces:          memory.Some([]memory.Face{{CropFile: "a.jpg"}}),
				Story:          memory.Some("Grandma's birthday."),
				NarrationAudio: memory.Some("/files/tts/m5.wav"),
			})
		})

		It("tags on top of the service's state", func() {
			resp, _ := do(http.MethodPost, "/v1/memories/m5/tags", []memory.FaceTag{
				{CropFile: "a.jpg", Label: "Grandma"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, body := do(http.MethodGet, "/v1/memories/m5", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var view processing.MemoryView
			decode(body, &view)
			Expect(view.Status).To(Equal(memory.StatusComplete))
			Expect(view.Images).To(HaveLen(1))
			Expect(*view.Faces[0].Label).To(Equal("Grandma"))
			Expect(svc.Calls()).To(Equal([]string{"get_memory:m5", "tag_faces:m5"}))
		})
	})

	Describe("GET /v1/search", func() {
		It("runs the query", func() {
			svc.Results = []memory.SearchResult{{MemoryID: "m4", Score: 0.1}, {MemoryID: "m2", Score: 0.8}}

			resp, body := do(http.MethodGet, "/v1/search?q=lake&person=Mom&k=3", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out SearchResponse
			decode(body, &out)
			Expect(out.Results[0].MemoryID).To(Equal("m4"))
			Expect(svc.Searches()[0].K).To(Equal(3))
			Expect(svc.Searches()[0].Person).To(Equal(memory.Some("Mom")))
		})

		It("rejects a blank query", func() {
			resp, _ := do(http.MethodGet, "/v1/search?q=%20", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(svc.Searches()).To(BeEmpty())
		})

		It("rejects a bad k", func() {
			resp, _ := do(http.MethodGet, "/v1/search?q=lake&k=zero", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports search failures with the stage", func() {
			svc.Fail[memory.StageSearch] = errors.New("no index")

			resp, body := do(http.MethodGet, "/v1/search?q=lake", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			var errResp ErrorResponse
			decode(body, &errResp)
			Expect(errResp.Stage).To(Equal(memory.StageSearch))
		})
	})

	Describe("playback", func() {
		BeforeEach(func() {
			svc.Seed(memory.Memory{ID: "m5", NarrationAudio: memory.Some("/files/m5/tts/story.wav")})
			svc.Seed(memory.Memory{ID: "m6"})
		})

		It("plays, stops, and releases narration", func() {
			resp, body := do(http.MethodPost, "/v1/playback/m5", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var state playback.State
			decode(body, &state)
			Expect(state).To(Equal(playback.State{Ref: "/files/m5/tts/story.wav", Loaded: true, Playing: true}))
			Expect(loader.Sounds()[0].URI).To(Equal("http://processing.test/files/m5/tts/story.wav"))

			resp, body = do(http.MethodPost, "/v1/playback/stop", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			decode(body, &state)
			Expect(state.Playing).To(BeFalse())
			Expect(state.Loaded).To(BeTrue())

			resp, body = do(http.MethodDelete, "/v1/playback", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			decode(body, &state)
			Expect(state).To(Equal(playback.State{}))
			Expect(loader.Live()).To(Equal(0))
		})

		It("rejects memories without narration", func() {
			resp, body := do(http.MethodPost, "/v1/playback/m6", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var errResp ErrorResponse
			decode(body, &errResp)
			Expect(errResp.Field).To(Equal("narration"))
			Expect(loader.Sounds()).To(BeEmpty())
		})

		It("maps load failures to 422", func() {
			loader.FailLoad["http://processing.test/files/m5/tts/story.wav"] = errors.New("codec")

			resp, _ := do(http.MethodPost, "/v1/playback/m5", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		It("reports idle state", func() {
			resp, body := do(http.MethodGet, "/v1/playback", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var state playback.State
			decode(body, &state)
			Expect(state.Loaded).To(BeFalse())
		})
	})

	It("exposes prometheus metrics", func() {
		_, err := orch.Submit(context.Background(), memory.Media{Photos: []memory.MediaFile{{Path: "/tmp/a.jpg"}}})
		Expect(err).NotTo(HaveOccurred())

		resp, body := do(http.MethodGet, "/metrics", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring(`palace_stage_executions_total{outcome="success",stage="upload"} 1`))
	})
})
