package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/dataset"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/internal/repository"
	"github.com/Sandro385/expert-tune/pkg/log"
	"github.com/Sandro385/expert-tune/pkg/storage"
	"github.com/Sandro385/expert-tune/pkg/tasks"

	"github.com/google/uuid"
)

const artifactLinkExpiry = time.Hour

// JobSubmitter hands a task to whatever executes it.
type JobSubmitter interface {
	Submit(ctx context.Context, task tasks.FineTuneTask) error
	CancelRunning(jobID string) error
}

// RecordIndexer receives the training records of each job.
type RecordIndexer interface {
	IndexRecords(ctx context.Context, docs []model.TrainingRecordDocument) error
}

// ArtifactLinker produces download links for uploaded job artifacts.
type ArtifactLinker interface {
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// DomainValidator rejects unknown domains.
type DomainValidator interface {
	ValidateDomain(domain string) error
}

// FineTuneService turns a stored conversation into a dataset and submits a training job.
type FineTuneService interface {
	// Preview builds the training records of a partition without writing anything.
	Preview(ctx context.Context, key model.ConversationKey) ([]model.TrainingRecord, error)
	// Trigger writes the dataset and submits a job. The returned job is queued;
	// its result arrives later on the job record.
	Trigger(ctx context.Context, key model.ConversationKey) (*model.FineTuneJob, error)
	Get(ctx context.Context, username, id string) (*model.FineTuneJob, error)
	List(ctx context.Context, username string) ([]model.FineTuneJob, error)
	Cancel(ctx context.Context, username, id string) (*model.FineTuneJob, error)
	// Artifacts returns download links of a finished job, keyed "dataset" and "log".
	Artifacts(ctx context.Context, job *model.FineTuneJob) map[string]string
}

type fineTuneService struct {
	messageRepo repository.MessageRepository
	jobRepo     repository.FineTuneJobRepository
	domains     DomainValidator
	builder     dataset.Builder
	submitter   JobSubmitter
	cfg         config.DatasetConfig

	indexer RecordIndexer
	linker  ArtifactLinker
}

// NewFineTuneService creates a FineTuneService. indexer and linker may be nil.
func NewFineTuneService(
	messageRepo repository.MessageRepository,
	jobRepo repository.FineTuneJobRepository,
	domains DomainValidator,
	builder dataset.Builder,
	submitter JobSubmitter,
	cfg config.DatasetConfig,
	indexer RecordIndexer,
	linker ArtifactLinker,
) FineTuneService {
	return &fineTuneService{
		messageRepo: messageRepo,
		jobRepo:     jobRepo,
		domains:     domains,
		builder:     builder,
		submitter:   submitter,
		cfg:         cfg,
		indexer:     indexer,
		linker:      linker,
	}
}

func (s *fineTuneService) Preview(ctx context.Context, key model.ConversationKey) ([]model.TrainingRecord, error) {
	if err := s.domains.ValidateDomain(key.Domain); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.LoadConversation(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(repository.Turns(messages), key.Domain), nil
}

func (s *fineTuneService) Trigger(ctx context.Context, key model.ConversationKey) (*model.FineTuneJob, error) {
	// 1. build from the store, which is the source of truth
	if err := s.domains.ValidateDomain(key.Domain); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.LoadConversation(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, apperr.Invalid("conversation", "is empty")
	}
	records := s.builder.Build(repository.Turns(messages), key.Domain)
	if len(records) == 0 {
		return nil, apperr.Invalid("conversation", "has no complete question and answer pair")
	}

	// 2. partition file, then the job's own snapshot
	id := uuid.NewString()
	jobDir := filepath.Join(s.cfg.WorkDir, "jobs", id)
	partitionPath := filepath.Join(s.cfg.WorkDir, safeSegment(key.Username), safeSegment(key.Domain), s.cfg.FileName)
	snapshotPath := filepath.Join(jobDir, s.cfg.FileName)
	for _, path := range []string{partitionPath, snapshotPath} {
		if err := dataset.WriteFile(path, records); err != nil {
			return nil, err
		}
	}
	log.Infof("[FineTuneService] wrote %d records for %s to %s", len(records), key, partitionPath)

	// 3. job record
	job := &model.FineTuneJob{
		ID:          id,
		Username:    key.Username,
		Domain:      key.Domain,
		Status:      model.JobQueued,
		DatasetPath: snapshotPath,
		LogPath:     filepath.Join(jobDir, "train.log"),
		RecordCount: len(records),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	s.index(ctx, job, records)

	// 4. submit
	task := tasks.FineTuneTask{
		JobID:       job.ID,
		Username:    job.Username,
		Domain:      job.Domain,
		DatasetPath: job.DatasetPath,
		LogPath:     job.LogPath,
	}
	if err := s.submitter.Submit(ctx, task); err != nil {
		log.Errorf("[FineTuneService] submit job %s failed: %v", job.ID, err)
		if ferr := s.jobRepo.Finish(context.WithoutCancel(ctx), job.ID, model.JobFailed, nil, err.Error()); ferr != nil {
			log.Errorf("[FineTuneService] failed to mark job %s failed: %v", job.ID, ferr)
		}
		return nil, fmt.Errorf("submit fine-tune job: %w", err)
	}
	return job, nil
}

func (s *fineTuneService) Get(ctx context.Context, username, id string) (*model.FineTuneJob, error) {
	job, err := s.jobRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Username != username {
		return nil, apperr.ErrNotFound
	}
	return job, nil
}

func (s *fineTuneService) List(ctx context.Context, username string) ([]model.FineTuneJob, error) {
	return s.jobRepo.ListByUser(ctx, username)
}

// Cancel stops a queued or running job. A running job reaches canceled once its
// process has been killed, so the returned job may still show running.
func (s *fineTuneService) Cancel(ctx context.Context, username, id string) (*model.FineTuneJob, error) {
	job, err := s.Get(ctx, username, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperr.Invalid("job", "already "+string(job.Status))
	}

	ok, err := s.jobRepo.Transition(ctx, id, model.JobQueued, model.JobCanceled)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.submitter.CancelRunning(id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return s.jobRepo.FindByID(ctx, id)
}

func (s *fineTuneService) Artifacts(ctx context.Context, job *model.FineTuneJob) map[string]string {
	if s.linker == nil || !job.Status.Terminal() {
		return nil
	}
	links := make(map[string]string, 2)
	for name, path := range map[string]string{"dataset": job.DatasetPath, "log": job.LogPath} {
		url, err := s.linker.PresignedURL(ctx, storage.JobObjectName(job.ID, filepath.Base(path)), artifactLinkExpiry)
		if err != nil {
			log.Warnf("[FineTuneService] presign %s of job %s failed: %v", name, job.ID, err)
			continue
		}
		links[name] = url
	}
	return links
}

func (s *fineTuneService) index(ctx context.Context, job *model.FineTuneJob, records []model.TrainingRecord) {
	if s.indexer == nil {
		return
	}
	now := time.Now()
	docs := make([]model.TrainingRecordDocument, len(records))
	for i, r := range records {
		docs[i] = model.TrainingRecordDocument{
			ID:         fmt.Sprintf("%s-%d", job.ID, i),
			JobID:      job.ID,
			Username:   job.Username,
			Domain:     job.Domain,
			Position:   i,
			Prompt:     r.Prompt,
			Completion: r.Completion,
			IndexedAt:  now,
		}
	}
	if err := s.indexer.IndexRecords(ctx, docs); err != nil {
		log.Warnf("[FineTuneService] indexing records of job %s failed: %v", job.ID, err)
	}
}

// safeSegment makes a username or domain usable as one path element.
func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_").Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
