// Package pipeline runs fine-tune jobs: it executes the training command against a
// dataset snapshot and records the outcome on the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/internal/repository"
	"github.com/Sandro385/expert-tune/pkg/log"
	"github.com/Sandro385/expert-tune/pkg/storage"
	"github.com/Sandro385/expert-tune/pkg/tasks"
)

// ArtifactUploader copies a local file to object storage.
type ArtifactUploader interface {
	Upload(ctx context.Context, objectName, filePath string) error
}

// Processor executes fine-tune tasks.
type Processor struct {
	jobRepo  repository.FineTuneJobRepository
	command  []string
	timeout  time.Duration
	uploader ArtifactUploader
}

// NewProcessor creates a Processor. uploader may be nil.
func NewProcessor(jobRepo repository.FineTuneJobRepository, cfg config.FineTuneConfig, uploader ArtifactUploader) *Processor {
	return &Processor{
		jobRepo:  jobRepo,
		command:  cfg.Command,
		timeout:  cfg.Timeout,
		uploader: uploader,
	}
}

// Process runs one task to completion. A non-zero exit is returned as
// *apperr.TrainingProcessError after it has been recorded on the job.
func (p *Processor) Process(ctx context.Context, task tasks.FineTuneTask) error {
	log.Infof("[Processor] starting job %s, user: %s, domain: %s", task.JobID, task.Username, task.Domain)
	storeCtx := context.WithoutCancel(ctx)

	// 1. claim the job
	ok, err := p.jobRepo.Transition(storeCtx, task.JobID, model.JobQueued, model.JobRunning)
	if err != nil {
		return err
	}
	if !ok {
		log.Warnf("[Processor] job %s is no longer queued, skipping", task.JobID)
		return nil
	}

	// 2. run the training command
	exitCode, runErr := p.run(ctx, task)

	// 3. record the outcome
	status, msg := model.JobSucceeded, ""
	var result error
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		status, msg = model.JobCanceled, "canceled"
	default:
		status, msg = model.JobFailed, runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s", p.timeout)
		}
		result = &apperr.TrainingProcessError{JobID: task.JobID, ExitCode: codeOrMinusOne(exitCode), LogPath: task.LogPath, Err: runErr}
	}
	if err := p.jobRepo.Finish(storeCtx, task.JobID, status, exitCode, msg); err != nil {
		log.Errorf("[Processor] failed to record result of job %s: %v", task.JobID, err)
		return err
	}
	log.Infof("[Processor] job %s finished with status %s", task.JobID, status)

	// 4. artifacts
	p.uploadArtifacts(storeCtx, task)
	return result
}

// run executes the command with its output redirected to the job log. exitCode is
// nil when the process could not be started.
func (p *Processor) run(ctx context.Context, task tasks.FineTuneTask) (*int, error) {
	if len(p.command) == 0 {
		return nil, errors.New("no training command configured")
	}
	if err := os.MkdirAll(filepath.Dir(task.LogPath), 0o755); err != nil {
		return nil, err
	}
	logFile, err := os.Create(task.LogPath)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, p.command[0], p.command[1:]...)
	cmd.Env = append(os.Environ(),
		"CURRENT_USER="+task.Username,
		"CURRENT_DOMAIN="+task.Domain,
		"DATASET_PATH="+task.DatasetPath,
		"FINETUNE_JOB_ID="+task.JobID,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start training command: %w", err)
	}
	err = cmd.Wait()
	code := cmd.ProcessState.ExitCode()
	if err == nil {
		return &code, nil
	}
	if runCtx.Err() != nil {
		return &code, runCtx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &code, fmt.Errorf("training command exited with status %d", code)
	}
	return &code, err
}

func (p *Processor) uploadArtifacts(ctx context.Context, task tasks.FineTuneTask) {
	if p.uploader == nil {
		return
	}
	for _, path := range []string{task.DatasetPath, task.LogPath} {
		name := storage.JobObjectName(task.JobID, filepath.Base(path))
		if err := p.uploader.Upload(ctx, name, path); err != nil {
			log.Warnf("[Processor] artifact upload failed for job %s: %v", task.JobID, err)
		}
	}
}

func codeOrMinusOne(code *int) int {
	if code == nil {
		return -1
	}
	return *code
}
