package mcp

import (
	"context"
	"errors"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/search"
	testutils "github.com/papercomputeco/memorypalace/pkg/utils/test"
)

func resultText(result *sdk.CallToolResult) string {
	Expect(result.Content).To(HaveLen(1))
	text, ok := result.Content[0].(*sdk.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

var _ = Describe("Tools", func() {
	var (
		svc    *testutils.MockService
		server *Server
		ctx    context.Context
	)

	BeforeEach(func() {
		svc = testutils.NewMockService()
		searcher, err := search.NewExecutor(search.Config{Service: svc})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{Service: svc, Searcher: searcher, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		ctx = context.TODO()
	})

	Describe("search_memories", func() {
		It("returns results in service order with resolved thumbnails", func() {
			svc.Results = []memory.SearchResult{
				{MemoryID: "m2", Score: 0.4},
				{MemoryID: "m1", Score: 0.9, Thumbnail: memory.Some("/files/m1/images/a.jpg")},
			}

			result, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "lake", Person: " Mom "})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Count).To(Equal(2))
			Expect(output.Results[0].MemoryID).To(Equal("m2"))
			Expect(*output.Results[1].Thumbnail).To(Equal("http://processing.test/files/m1/images/a.jpg"))
			Expect(resultText(result)).To(ContainSubstring(`"memory_id":"m2"`))

			Expect(svc.Searches()[0].Person).To(Equal(memory.Some("Mom")))
		})

		It("reports a blank query as a tool error", func() {
			result, _, err := server.handleSearch(ctx, nil, SearchInput{Query: "  "})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(svc.Calls()).To(BeEmpty())
		})
	})

	Describe("get_memory", func() {
		It("returns the memory with its status", func() {
			svc.Seed(memory.Memory{
				ID:     "m1",
				Images: []string{"/files/m1/images/a.jpg"},
				Faces:  memory.Some([]memory.Face{}),
				Story:  memory.Some("Fishing with Dad."),
			})

			result, output, err := server.handleGetMemory(ctx, nil, GetMemoryInput{MemoryID: "m1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Status).To(Equal(memory.StatusStoryGenerated))
			Expect(output.Images).To(ConsistOf("http://processing.test/files/m1/images/a.jpg"))
		})

		It("requires an id", func() {
			result, _, err := server.handleGetMemory(ctx, nil, GetMemoryInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})

		It("reports unknown memories as a tool error", func() {
			result, _, err := server.handleGetMemory(ctx, nil, GetMemoryInput{MemoryID: "nope"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(resultText(result)).To(ContainSubstring("get_memory failed"))
		})
	})

	Describe("list_memories", func() {
		It("lists in service order", func() {
			svc.Seed(memory.Memory{ID: "m2"})
			svc.Seed(memory.Memory{ID: "m1"})

			_, output, err := server.handleListMemories(ctx, nil, ListMemoriesInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(output.Count).To(Equal(2))
			Expect(output.Memories[0].ID).To(Equal("m2"))
		})

		It("reports service failures", func() {
			svc.Fail[memory.StageListMemories] = errors.New("down")

			result, _, err := server.handleListMemories(ctx, nil, ListMemoriesInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})
	})
})
