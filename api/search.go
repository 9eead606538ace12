package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/memorypalace/pkg/processing"
	"github.com/papercomputeco/memorypalace/pkg/search"
)

// SearchResponse is the body of GET /v1/search.
type SearchResponse struct {
	Query   string                        `json:"query"`
	Count   int                           `json:"count"`
	Results []processing.SearchResultView `json:"results"`
}

// handleSearch handles GET /v1/search requests.
// Query parameters:
//   - q (required): the search query text
//   - person (optional): only memories with a face tagged with this name
//   - k (optional, default 6): number of results to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	k := 0
	if kStr := c.Query("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "k must be a positive integer")
		}
		k = parsed
	}

	results, err := s.config.Searcher.Search(c.UserContext(), search.Query{
		Text:   c.Query("q"),
		Person: c.Query("person"),
		K:      k,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	views := processing.NewSearchResultViews(results, s.config.Service.ResolveURL)
	return c.JSON(SearchResponse{
		Query:   c.Query("q"),
		Count:   len(views),
		Results: views,
	})
}
