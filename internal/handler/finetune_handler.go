package handler

import (
	"net/http"

	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/internal/service"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/gin-gonic/gin"
)

// FineTuneHandler serves fine-tune jobs of the authenticated user.
type FineTuneHandler struct {
	fineTuneService service.FineTuneService
}

// NewFineTuneHandler creates a FineTuneHandler.
func NewFineTuneHandler(fineTuneService service.FineTuneService) *FineTuneHandler {
	return &FineTuneHandler{fineTuneService: fineTuneService}
}

// JobResponse is the API view of a job.
type JobResponse struct {
	ID          string            `json:"id"`
	Domain      string            `json:"domain"`
	Status      model.JobStatus   `json:"status"`
	RecordCount int               `json:"recordCount"`
	ExitCode    *int              `json:"exitCode"`
	LogPath     string            `json:"logPath"`
	Error       string            `json:"error,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
	CreatedAt   model.LocalTime   `json:"createdAt"`
	UpdatedAt   model.LocalTime   `json:"updatedAt"`
}

func newJobResponse(job *model.FineTuneJob) JobResponse {
	return JobResponse{
		ID:          job.ID,
		Domain:      job.Domain,
		Status:      job.Status,
		RecordCount: job.RecordCount,
		ExitCode:    job.ExitCode,
		LogPath:     job.LogPath,
		Error:       job.Error,
		CreatedAt:   model.LocalTime(job.CreatedAt),
		UpdatedAt:   model.LocalTime(job.UpdatedAt),
	}
}

// Trigger builds the dataset of a domain and submits a training job.
func (h *FineTuneHandler) Trigger(c *gin.Context) {
	key := conversationKey(c)
	job, err := h.fineTuneService.Trigger(c.Request.Context(), key)
	if err != nil {
		failWithError(c, "Trigger", err)
		return
	}
	log.Infof("Fine-tune job %s submitted for %s", job.ID, key)
	ok(c, http.StatusAccepted, "Fine-tune job submitted", newJobResponse(job))
}

// ListJobs returns the user's jobs, newest first.
func (h *FineTuneHandler) ListJobs(c *gin.Context) {
	jobs, err := h.fineTuneService.List(c.Request.Context(), currentUser(c).Username)
	if err != nil {
		failWithError(c, "ListJobs", err)
		return
	}
	out := make([]JobResponse, len(jobs))
	for i := range jobs {
		out[i] = newJobResponse(&jobs[i])
	}
	ok(c, http.StatusOK, "success", out)
}

// GetJob returns one job with artifact links once it has finished.
func (h *FineTuneHandler) GetJob(c *gin.Context) {
	job, err := h.fineTuneService.Get(c.Request.Context(), currentUser(c).Username, c.Param("id"))
	if err != nil {
		failWithError(c, "GetJob", err)
		return
	}
	resp := newJobResponse(job)
	resp.Artifacts = h.fineTuneService.Artifacts(c.Request.Context(), job)
	ok(c, http.StatusOK, "success", resp)
}

// CancelJob cancels a queued or running job.
func (h *FineTuneHandler) CancelJob(c *gin.Context) {
	job, err := h.fineTuneService.Cancel(c.Request.Context(), currentUser(c).Username, c.Param("id"))
	if err != nil {
		failWithError(c, "CancelJob", err)
		return
	}
	log.Infof("Fine-tune job %s cancel requested", job.ID)
	ok(c, http.StatusOK, "Cancel requested", newJobResponse(job))
}
