// Package search runs ranked retrieval queries against the processing
// service and resolves results back into memories.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/memorypalace/pkg/logger"
	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/processing"
)

// Query is a caregiver's search input.
type Query struct {
	Text string

	// Person narrows results to memories tagged with this name. Blank means
	// no filter.
	Person string

	// K is the number of results requested. Zero or negative uses the
	// executor's default.
	K int
}

// Config is the configuration for an Executor.
type Config struct {
	Service processing.Service

	// DefaultK defaults to processing.DefaultSearchK.
	DefaultK int

	Logger *slog.Logger
}

// Executor validates queries and runs them.
type Executor struct {
	svc      processing.Service
	defaultK int
	logger   *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Service == nil {
		return nil, errors.New("search requires a processing service")
	}

	k := cfg.DefaultK
	if k <= 0 {
		k = processing.DefaultSearchK
	}

	return &Executor{
		svc:      cfg.Service,
		defaultK: k,
		logger:   logger.OrNop(cfg.Logger),
	}, nil
}

// Search runs q. A blank query fails with a ValidationError before any
// network call. Results keep the order the service returned them in;
// entries without a memory id are dropped.
func (e *Executor) Search(ctx context.Context, q Query) ([]memory.SearchResult, error) {
	req, err := e.request(q)
	if err != nil {
		return nil, err
	}

	results, err := e.svc.Search(ctx, req)
	if err != nil {
		e.logger.Warn("search failed", "query", req.Query, "error", err)
		return nil, fmt.Errorf("searching: %w", err)
	}

	out := make([]memory.SearchResult, 0, len(results))
	for _, r := range results {
		if r.MemoryID == "" {
			continue
		}
		out = append(out, r)
	}

	e.logger.Debug("search completed",
		"query", req.Query,
		"person", req.Person.OrElse(""),
		"k", req.K,
		"results", len(out),
	)
	return out, nil
}

func (e *Executor) request(q Query) (processing.SearchRequest, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return processing.SearchRequest{}, &memory.ValidationError{Field: "query", Reason: "must not be blank"}
	}

	req := processing.SearchRequest{
		Query:  text,
		Person: memory.None[string](),
		K:      q.K,
	}
	if person := strings.TrimSpace(q.Person); person != "" {
		req.Person = memory.Some(person)
	}
	if req.K <= 0 {
		req.K = e.defaultK
	}
	return req, nil
}

// Resolve fetches the memory a result points at.
func (e *Executor) Resolve(ctx context.Context, result memory.SearchResult) (memory.Memory, error) {
	if result.MemoryID == "" {
		return memory.Memory{}, &memory.ValidationError{Field: "memory_id", Reason: "must not be empty"}
	}

	m, err := e.svc.GetMemory(ctx, result.MemoryID)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("resolving %s: %w", result.MemoryID, err)
	}
	if m == nil {
		return memory.Memory{}, fmt.Errorf("resolving %s: %w", result.MemoryID,
			&memory.RemoteError{Stage: memory.StageGetMemory, Err: errors.New("service returned no memory")})
	}
	return m.Clone(), nil
}
