// Package scheduler runs periodic maintenance tasks on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/robfig/cron/v3"
)

// Scheduler owns one cron runner and the context handed to its tasks.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped Scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers task under spec. An empty spec is ignored. Overlapping runs of the
// same task are skipped.
func (s *Scheduler) Add(name, spec string, task func(ctx context.Context) error) error {
	if spec == "" {
		log.Infof("[Scheduler] %s disabled", name)
		return nil
	}
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		if err := task(s.ctx); err != nil {
			log.Errorf("[Scheduler] %s failed: %v", name, err)
		}
	}))
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	log.Infof("[Scheduler] %s scheduled at %q", name, spec)
	return nil
}

// Start runs the registered tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}
