// Package rest implements processing.Service over the processing service's
// HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/processing"
	"github.com/papercomputeco/memorypalace/pkg/utils"
)

const (
	// DefaultBaseURL is the default processing service origin.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds every call, including uploads.
	DefaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of a failed response body is kept.
	maxErrorBody = 512
)

// Config holds configuration for the REST client.
type Config struct {
	// BaseURL is the service origin (e.g., "http://localhost:8000").
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Timeout is the per-request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying client. Its Timeout is left as is.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the processing service.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new REST client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must include scheme and host", baseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:       base,
		httpClient: httpClient,
		logger:     logger.OrNop(cfg.Logger),
	}, nil
}

// ResolveURL joins a server-relative ref with the base origin. Absolute URLs
// and empty refs are returned unchanged.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

// Process runs the ingest step.
func (c *Client) Process(ctx context.Context, memoryID string) error {
	return c.postEmpty(ctx, memory.StageProcess, "/process/"+url.PathEscape(memoryID))
}

// DetectFaces runs face detection. A response without a faces field means
// detection found nobody.
func (c *Client) DetectFaces(ctx context.Context, memoryID string) ([]memory.Face, error) {
	var resp detectResponse
	if err := c.doJSON(ctx, memory.StageDetectFaces, http.MethodPost, "/faces/"+url.PathEscape(memoryID)+"/detect", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Faces == nil {
		return []memory.Face{}, nil
	}
	return resp.Faces, nil
}

// TagFaces sends crop labels.
func (c *Client) TagFaces(ctx context.Context, memoryID string, tags []memory.FaceTag) error {
	if tags == nil {
		tags = []memory.FaceTag{}
	}
	return c.doJSON(ctx, memory.StageTagFaces, http.MethodPost, "/faces/"+url.PathEscape(memoryID)+"/tag", tags, nil)
}

// GenerateStory regenerates the narrative and returns it.
func (c *Client) GenerateStory(ctx context.Context, memoryID string) (string, error) {
	var resp storyResponse
	if err := c.doJSON(ctx, memory.StageGenerateStory, http.MethodPost, "/generate_story/"+url.PathEscape(memoryID), nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Story) == "" {
		return "", &memory.RemoteError{Stage: memory.StageGenerateStory, Err: errors.New("response missing story")}
	}
	return resp.Story, nil
}

// Narrate synthesizes speech and returns the server-relative audio ref.
func (c *Client) Narrate(ctx context.Context, memoryID string) (string, error) {
	var resp narrateResponse
	if err := c.doJSON(ctx, memory.StageNarrate, http.MethodPost, "/narrate/"+url.PathEscape(memoryID), nil, &resp); err != nil {
		return "", err
	}
	if resp.AudioURL == "" {
		return "", &memory.RemoteError{Stage: memory.StageNarrate, Err: errors.New("response missing audio_url")}
	}
	return resp.AudioURL, nil
}

// Embed reindexes the memory for search.
func (c *Client) Embed(ctx context.Context, memoryID string) error {
	return c.postEmpty(ctx, memory.StageEmbed, "/embed/"+url.PathEscape(memoryID))
}

// GetMemory fetches the authoritative snapshot.
func (c *Client) GetMemory(ctx context.Context, memoryID string) (*memory.Memory, error) {
	var resp memoryResponse
	if err := c.doJSON(ctx, memory.StageGetMemory, http.MethodGet, "/memory/"+url.PathEscape(memoryID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toMemory(memoryID), nil
}

// ListMemories returns every memory summary in service order.
func (c *Client) ListMemories(ctx context.Context) ([]memory.Summary, error) {
	var resp listResponse
	if err := c.doJSON(ctx, memory.StageListMemories, http.MethodGet, "/memories", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]memory.Summary, 0, len(resp.Memories))
	for _, m := range resp.Memories {
		out = append(out, memory.Summary{
			ID:        m.ID,
			Thumbnail: optionalString(m.Thumbnail),
			CreatedAt: parseTime(m.CreatedAt),
		})
	}
	return out, nil
}

// Search runs a ranked retrieval query. Results are returned in service
// order. A 200 response with ok=false is a service failure.
func (c *Client) Search(ctx context.Context, req processing.SearchRequest) ([]memory.SearchResult, error) {
	body := searchRequest{Q: req.Query, K: req.K}
	if person, ok := req.Person.Get(); ok {
		body.Person = &person
	}

	var resp searchResponse
	if err := c.doJSON(ctx, memory.StageSearch, http.MethodPost, "/search", body, &resp); err != nil {
		return nil, err
	}
	if resp.OK != nil && !*resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "service reported failure"
		}
		return nil, &memory.RemoteError{Stage: memory.StageSearch, Err: errors.New(msg)}
	}

	out := make([]memory.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, memory.SearchResult{
			MemoryID:  r.MemoryID,
			Score:     r.Score,
			Thumbnail: optionalString(r.Thumbnail),
		})
	}
	return out, nil
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, memory.StageHealth, http.MethodGet, "/health", nil, nil)
}

func (c *Client) postEmpty(ctx context.Context, stage memory.Stage, path string) error {
	return c.doJSON(ctx, stage, http.MethodPost, path, nil, nil)
}

// doJSON sends an optional JSON body and decodes a JSON response into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, stage memory.Stage, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return &memory.RemoteError{Stage: stage, Err: fmt.Errorf("marshaling request: %w", err)}
		}
		body = bytes.NewReader(jsonBody)
		contentType = "application/json"
	}

	return c.do(ctx, stage, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, stage memory.Stage, method, path string, body io.Reader, contentType string, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return &memory.RemoteError{Stage: stage, Err: fmt.Errorf("creating request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("processing request failed",
			"stage", stage,
			"path", path,
			"error", err,
		)
		return &memory.RemoteError{Stage: stage, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("processing request",
		"stage", stage,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxErrorBody))
		return &memory.RemoteError{
			Stage:      stage,
			StatusCode: resp.StatusCode,
			Body:       utils.Truncate(strings.TrimSpace(string(respBody)), maxErrorBody),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &memory.RemoteError{Stage: stage, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}

	return nil
}

// Ensure Client implements processing.Service
var _ processing.Service = (*Client)(nil)
