package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ownlingo/ownlingo/internal/jobs"
	"github.com/ownlingo/ownlingo/internal/payloadschema"
	"github.com/ownlingo/ownlingo/internal/translator"
)

const maxRequestBodyBytes = 256 * 1024

type jobView struct {
	JobUUID        string     `json:"job_uuid"`
	JobType        string     `json:"job_type"`
	Status         string     `json:"status"`
	Priority       int        `json:"priority"`
	SourceLocale   string     `json:"source_locale"`
	TargetLocales  []string   `json:"target_locales"`
	TotalItems     int        `json:"total_items"`
	CompletedItems int        `json:"completed_items"`
	FailedItems    int        `json:"failed_items"`
	Progress       int        `json:"progress"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type progressView struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Progress  int `json:"progress"`
}

type statsViewBody struct {
	PendingJobs        int64 `json:"pending_jobs"`
	RunningJobs        int64 `json:"running_jobs"`
	CompletedJobs      int64 `json:"completed_jobs"`
	FailedJobs         int64 `json:"failed_jobs"`
	CancelledJobs      int64 `json:"cancelled_jobs"`
	TotalItems         int64 `json:"total_items"`
	CachedTranslations int64 `json:"cached_translations"`
}

func newJobView(job *jobs.Job) jobView {
	return jobView{
		JobUUID:        job.JobUUID,
		JobType:        string(job.Type),
		Status:         string(job.Status),
		Priority:       job.Priority,
		SourceLocale:   job.SourceLocale,
		TargetLocales:  job.TargetLocales,
		TotalItems:     job.TotalItems,
		CompletedItems: job.CompletedItems,
		FailedItems:    job.FailedItems,
		Progress:       job.Progress,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
}

func statsView(stats *jobs.Stats) statsViewBody {
	if stats == nil {
		return statsViewBody{}
	}
	return statsViewBody{
		PendingJobs:        stats.PendingJobs,
		RunningJobs:        stats.RunningJobs,
		CompletedJobs:      stats.CompletedJobs,
		FailedJobs:         stats.FailedJobs,
		CancelledJobs:      stats.CancelledJobs,
		TotalItems:         stats.TotalItems,
		CachedTranslations: stats.CachedTranslations,
	}
}

func (s *Server) handleCreateJob(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRequestBodyBytes+1))
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}
	if len(body) > maxRequestBodyBytes {
		return fail(c, 413, "Request body too large", nil)
	}

	req, err := payloadschema.ValidateJobCreatePayload(json.RawMessage(body))
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	params := jobs.CreateParams{
		Type:          jobs.JobType(req.JobType),
		SourceLocale:  req.SourceLocale,
		TargetLocales: req.TargetLocales,
	}
	if req.Priority != nil {
		params.Priority = *req.Priority
	}
	if req.ResourceID != nil {
		params.ResourceID = *req.ResourceID
	}
	if req.MaxRetries != nil {
		params.MaxRetries = *req.MaxRetries
	}

	job, err := s.creator.Create(c.Request().Context(), params)
	if err != nil {
		if errors.Is(err, translator.ErrResourceNotFound) {
			return failNotFound(c, "Resource not found")
		}
		return failValidation(c, map[string]string{"request": err.Error()})
	}

	return created(c, newJobView(job))
}

// validateJobUUID rejects malformed identifiers before they reach the
// store, where a bad value would surface as a uuid cast error instead of
// a not-found.
func validateJobUUID(jobUUID string) map[string]string {
	if jobUUID == "" {
		return map[string]string{"job_uuid": "is required"}
	}
	if _, err := uuid.Parse(jobUUID); err != nil {
		return map[string]string{"job_uuid": "must be a valid UUID"}
	}
	return nil
}

func (s *Server) handleGetJob(c echo.Context) error {
	jobUUID := strings.TrimSpace(c.Param("job_uuid"))
	if fields := validateJobUUID(jobUUID); fields != nil {
		return failValidation(c, fields)
	}

	job, err := s.store.GetJobByUUID(c.Request().Context(), jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return failNotFound(c, "Job not found")
		}
		s.logger.Error().Err(err).Str("job_uuid", jobUUID).Msg("query job failed")
		return internalError(c, "Failed to load job")
	}
	return success(c, newJobView(job))
}

func (s *Server) handleJobProgress(c echo.Context) error {
	jobUUID := strings.TrimSpace(c.Param("job_uuid"))
	if fields := validateJobUUID(jobUUID); fields != nil {
		return failValidation(c, fields)
	}

	progress, err := s.store.GetJobProgress(c.Request().Context(), jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return failNotFound(c, "Job not found")
		}
		s.logger.Error().Err(err).Str("job_uuid", jobUUID).Msg("query job progress failed")
		return internalError(c, "Failed to load job progress")
	}
	return success(c, progressView{
		Total:     progress.Total,
		Completed: progress.Completed,
		Failed:    progress.Failed,
		Progress:  progress.Percent,
	})
}

func (s *Server) handleCancelJob(c echo.Context) error {
	jobUUID := strings.TrimSpace(c.Param("job_uuid"))
	if fields := validateJobUUID(jobUUID); fields != nil {
		return failValidation(c, fields)
	}

	job, err := s.canceller.Cancel(c.Request().Context(), jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return failNotFound(c, "Job not found")
		}
		return failConflict(c, err.Error())
	}
	return success(c, newJobView(job))
}

func (s *Server) handleRetryJob(c echo.Context) error {
	jobUUID := strings.TrimSpace(c.Param("job_uuid"))
	if fields := validateJobUUID(jobUUID); fields != nil {
		return failValidation(c, fields)
	}

	reset, err := s.store.ResetFailedItems(c.Request().Context(), jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return failNotFound(c, "Job not found")
		}
		s.logger.Error().Err(err).Str("job_uuid", jobUUID).Msg("reset failed items failed")
		return internalError(c, "Failed to retry job")
	}
	if s.notifier != nil {
		s.notifier.Notify()
	}
	return success(c, map[string]any{
		"job_uuid":    jobUUID,
		"items_reset": reset,
	})
}

func (s *Server) handleListJobs(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	status := strings.TrimSpace(strings.ToLower(c.QueryParam("status")))
	if status != "" && !jobs.JobStatus(status).Terminal() &&
		status != string(jobs.JobStatusPending) && status != string(jobs.JobStatusRunning) {
		return failValidation(c, map[string]string{"status": "unknown job status"})
	}

	list, err := s.store.ListJobs(c.Request().Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("query jobs failed")
		return internalError(c, "Failed to load jobs")
	}

	items := make([]jobView, 0, len(list))
	for _, job := range list {
		items = append(items, newJobView(job))
	}
	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":      page,
			"page_size": pageSize,
		},
		"filters": map[string]any{
			"status": status,
		},
	})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
