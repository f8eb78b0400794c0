package pipeline

import (
	"context"
	"sync"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/pkg/log"
	"github.com/Sandro385/expert-tune/pkg/tasks"
)

// TaskProcessor runs one fine-tune task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.FineTuneTask) error
}

// LocalRunner processes submitted tasks in the server process, one goroutine per job.
type LocalRunner struct {
	processor TaskProcessor
	base      context.Context
	stop      context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewLocalRunner creates a LocalRunner.
func NewLocalRunner(processor TaskProcessor) *LocalRunner {
	base, stop := context.WithCancel(context.Background())
	return &LocalRunner{
		processor: processor,
		base:      base,
		stop:      stop,
		running:   make(map[string]context.CancelFunc),
	}
}

// Submit starts the task and returns immediately. The caller's ctx only bounds the
// submission; the job outlives the request that triggered it.
func (r *LocalRunner) Submit(_ context.Context, task tasks.FineTuneTask) error {
	jobCtx, cancel := context.WithCancel(r.base)

	r.mu.Lock()
	r.running[task.JobID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, task.JobID)
			r.mu.Unlock()
			cancel()
		}()
		if err := r.processor.Process(jobCtx, task); err != nil {
			log.Errorf("[LocalRunner] job %s: %v", task.JobID, err)
		}
	}()
	return nil
}

// CancelRunning stops the training process of jobID.
func (r *LocalRunner) CancelRunning(jobID string) error {
	r.mu.Lock()
	cancel, ok := r.running[jobID]
	r.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	cancel()
	return nil
}

// Wait blocks until every submitted job has finished.
func (r *LocalRunner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels all running jobs and waits for them.
func (r *LocalRunner) Shutdown() {
	r.stop()
	r.wg.Wait()
}
