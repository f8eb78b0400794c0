package model

import "time"

// JobStatus is the lifecycle state of a fine-tune job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

// FineTuneJob records one submitted training run and its result.
type FineTuneJob struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Username    string    `gorm:"size:191;index" json:"username"`
	Domain      string    `gorm:"size:191" json:"domain"`
	Status      JobStatus `gorm:"size:16;not null" json:"status"`
	DatasetPath string    `gorm:"size:1024" json:"datasetPath"`
	LogPath     string    `gorm:"size:1024" json:"logPath"`
	RecordCount int       `json:"recordCount"`
	// ExitCode stays nil until the process has exited.
	ExitCode  *int      `json:"exitCode"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (FineTuneJob) TableName() string {
	return "finetune_jobs"
}
