// Package worker provides an asynchronous worker pool that reindexes memories
// for search using the provided Embedder.
//
// The pool bounds how many embed calls run against the processing service at
// once, so reindexing a large collection does not flood it.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/memorypalace/pkg/logger"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Embedder reindexes a single memory.
type Embedder interface {
	Embed(ctx context.Context, memoryID string) error
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	MemoryID string
}

// Result is reported once per processed job.
type Result struct {
	MemoryID string
	Elapsed  time.Duration
	Err      error
}

// Stats counts processed jobs.
type Stats struct {
	Succeeded uint64
	Failed    uint64
	Dropped   uint64
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Embedder performs the work. Required.
	Embedder Embedder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// OnResult, if set, is called from the worker goroutine after each job.
	OnResult func(Result)

	Logger *slog.Logger
}

// Pool processes embed jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// ctx is canceled by Abort to stop in-flight jobs.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	succeeded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Embedder == nil {
		return nil, fmt.Errorf("worker pool requires an embedder")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
		ctx:    ctx,
		cancel: cancel,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "memory_id", job.MemoryID)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Error("job not queued, queue full, job dropped", "memory_id", job.MemoryID)
		return false
	}
}

// Close signals workers to stop and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
	p.cancel()
}

// Abort cancels in-flight jobs, discards queued ones and waits for workers
// to exit.
func (p *Pool) Abort() {
	p.cancel()
	p.Close()
}

// Stats returns a snapshot of the job counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		if p.ctx.Err() != nil {
			p.dropped.Add(1)
			continue
		}
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	start := time.Now()
	err := p.config.Embedder.Embed(p.ctx, job.MemoryID)
	elapsed := time.Since(start)

	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("reindex failed",
			"memory_id", job.MemoryID,
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		p.succeeded.Add(1)
		p.logger.Info("memory reindexed",
			"memory_id", job.MemoryID,
			"elapsed", elapsed,
		)
	}

	if p.config.OnResult != nil {
		p.config.OnResult(Result{MemoryID: job.MemoryID, Elapsed: elapsed, Err: err})
	}
}
