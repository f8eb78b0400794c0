package repository

import (
	"context"
	"errors"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/model"

	"gorm.io/gorm"
)

// FineTuneJobRepository persists fine-tune jobs and their results.
type FineTuneJobRepository interface {
	Create(ctx context.Context, job *model.FineTuneJob) error
	FindByID(ctx context.Context, id string) (*model.FineTuneJob, error)
	// ListByUser returns the user's jobs, newest first.
	ListByUser(ctx context.Context, username string) ([]model.FineTuneJob, error)
	// Transition moves a job from one status to another. It returns false when the
	// job was not in status from, so two callers never win the same transition.
	Transition(ctx context.Context, id string, from, to model.JobStatus) (bool, error)
	// FailUnfinished marks every queued or running job failed with reason and
	// returns how many were changed.
	FailUnfinished(ctx context.Context, reason string) (int64, error)
	// Finish records the terminal status. exitCode may be nil when the process never ran.
	Finish(ctx context.Context, id string, status model.JobStatus, exitCode *int, errMsg string) error
}

type fineTuneJobRepository struct {
	db *gorm.DB
}

// NewFineTuneJobRepository creates a gorm-backed FineTuneJobRepository.
func NewFineTuneJobRepository(db *gorm.DB) FineTuneJobRepository {
	return &fineTuneJobRepository{db: db}
}

func (r *fineTuneJobRepository) Create(ctx context.Context, job *model.FineTuneJob) error {
	return apperr.Storage("create job", r.db.WithContext(ctx).Create(job).Error)
}

func (r *fineTuneJobRepository) FindByID(ctx context.Context, id string) (*model.FineTuneJob, error) {
	var job model.FineTuneJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Storage("find job", err)
	}
	return &job, nil
}

func (r *fineTuneJobRepository) ListByUser(ctx context.Context, username string) ([]model.FineTuneJob, error) {
	jobs := make([]model.FineTuneJob, 0)
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, apperr.Storage("list jobs", err)
	}
	return jobs, nil
}

func (r *fineTuneJobRepository) Transition(ctx context.Context, id string, from, to model.JobStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.FineTuneJob{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, apperr.Storage("transition job", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *fineTuneJobRepository) Finish(ctx context.Context, id string, status model.JobStatus, exitCode *int, errMsg string) error {
	res := r.db.WithContext(ctx).Model(&model.FineTuneJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    status,
			"exit_code": exitCode,
			"error":     errMsg,
		})
	if res.Error != nil {
		return apperr.Storage("finish job", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *fineTuneJobRepository) FailUnfinished(ctx context.Context, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.FineTuneJob{}).
		Where("status IN ?", []model.JobStatus{model.JobQueued, model.JobRunning}).
		Updates(map[string]interface{}{"status": model.JobFailed, "error": reason})
	if res.Error != nil {
		return 0, apperr.Storage("fail unfinished jobs", res.Error)
	}
	return res.RowsAffected, nil
}
