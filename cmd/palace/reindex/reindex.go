// Package reindexcmder provides the reindex command, which rebuilds search
// embeddings for memories using a bounded worker pool.
package reindexcmder

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/memorypalace/cmd/palace/common"
	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/config"
	"github.com/papercomputeco/memorypalace/pkg/utils"
	"github.com/papercomputeco/memorypalace/pkg/worker"
)

type reindexCommander struct {
	flags   commoncmder.ServiceFlags
	workers uint
}

const reindexLongDesc string = `Rebuild search embeddings for memories.

With no ids every memory known to the service is reindexed. Embed calls run
on a small worker pool (--workers) so the service is not flooded. Press
Ctrl+C to abandon the remaining work.

Examples:
  palace reindex
  palace reindex 9f6c2a 71b0de --workers 1`

const reindexShortDesc string = "Rebuild search embeddings"

func NewReindexCmd() *cobra.Command {
	cmder := &reindexCommander{}

	cmd := &cobra.Command{
		Use:   "reindex [memory-id...]",
		Short: reindexShortDesc,
		Long:  reindexLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	commoncmder.AddServiceFlags(cmd, &cmder.flags)
	config.AddUintFlag(cmd, config.Registry, config.FlagWorkers, &cmder.workers)
	return cmd
}

func (c *reindexCommander) run(cmd *cobra.Command, ids []string) error {
	rt, err := commoncmder.NewRuntime(cmd, config.FlagWorkers)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if len(ids) == 0 {
		summaries, err := rt.Service.ListMemories(ctx)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
	}

	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, cliui.DimStyle.Render("Nothing to reindex."))
		return nil
	}

	start := time.Now()
	pool, err := worker.NewPool(&worker.Config{
		Embedder:   rt.Orchestrator,
		NumWorkers: rt.Config.Reindex.Workers,
		QueueSize:  uint(len(ids)),
		OnResult:   resultPrinter(out),
		Logger:     rt.Logger,
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		pool.Enqueue(worker.Job{MemoryID: id})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-sigCh:
		rt.Logger.Info("abandoning remaining reindex jobs")
		pool.Abort()
		<-done
	}

	stats := pool.Stats()
	fmt.Fprintf(out, "\n  %s reindexed, %s failed in %s\n",
		cliui.ValueStyle.Render(fmt.Sprint(stats.Succeeded)),
		cliui.ValueStyle.Render(fmt.Sprint(stats.Failed)),
		cliui.FormatDuration(time.Since(start)),
	)

	if missed := uint64(len(ids)) - stats.Succeeded; missed > 0 {
		return fmt.Errorf("%d of %d memories were not reindexed", missed, len(ids))
	}
	return nil
}

// resultPrinter serializes per-job lines written from worker goroutines.
func resultPrinter(w io.Writer) func(worker.Result) {
	var mu sync.Mutex
	return func(r worker.Result) {
		mu.Lock()
		defer mu.Unlock()

		if r.Err != nil {
			fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, r.MemoryID, cliui.DimStyle.Render(utils.Truncate(r.Err.Error(), 100)))
			return
		}
		fmt.Fprintf(w, "  %s %s %s\n", cliui.SuccessMark, r.MemoryID, cliui.StepStyle.Render(cliui.FormatDuration(r.Elapsed)))
	}
}
