package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/ownlingo/ownlingo/internal/jobs"
)

const jobColumns = `
	job_id,
	job_uuid::text,
	job_type::text,
	status::text,
	priority,
	source_locale,
	array_to_string(target_locales, ','),
	total_items,
	completed_items,
	failed_items,
	progress,
	error_message,
	created_at,
	updated_at,
	started_at,
	completed_at`

func scanJob(scan func(dest ...any) error) (*jobs.Job, error) {
	var (
		job     jobs.Job
		jobType string
		status  string
		locales string
	)
	err := scan(
		&job.JobID,
		&job.JobUUID,
		&jobType,
		&status,
		&job.Priority,
		&job.SourceLocale,
		&locales,
		&job.TotalItems,
		&job.CompletedItems,
		&job.FailedItems,
		&job.Progress,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Type = jobs.JobType(jobType)
	job.Status = jobs.JobStatus(status)
	if locales != "" {
		job.TargetLocales = strings.Split(locales, ",")
	}
	return &job, nil
}

func (p *Pool) CreateJob(ctx context.Context, job *jobs.Job, items []*jobs.Item) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create-job transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertJob = `
INSERT INTO ownlingo.jobs (
	job_uuid,
	job_type,
	status,
	priority,
	source_locale,
	target_locales,
	total_items
)
VALUES ($1::uuid, $2::ownlingo.job_type, 'pending', $3, $4, string_to_array($5, ','), $6)
RETURNING job_id, created_at, updated_at
`

	err = tx.QueryRow(
		ctx,
		insertJob,
		job.JobUUID,
		string(job.Type),
		job.Priority,
		job.SourceLocale,
		strings.Join(job.TargetLocales, ","),
		len(items),
	).Scan(&job.JobID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.Status = jobs.JobStatusPending
	job.TotalItems = len(items)

	const insertItem = `
INSERT INTO ownlingo.job_items (
	job_id,
	resource_id,
	target_locale,
	status,
	max_retries
)
VALUES ($1, $2, $3, 'pending', $4)
RETURNING item_id, item_uuid::text
`

	for _, item := range items {
		item.JobID = job.JobID
		item.Status = jobs.ItemStatusPending
		if err := tx.QueryRow(
			ctx,
			insertItem,
			job.JobID,
			item.ResourceID,
			item.TargetLocale,
			item.MaxRetries,
		).Scan(&item.ItemID, &item.ItemUUID); err != nil {
			return fmt.Errorf("insert job item for resource %s: %w", item.ResourceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create-job transaction: %w", err)
	}
	committed = true
	return nil
}

func (p *Pool) GetJobByUUID(ctx context.Context, jobUUID string) (*jobs.Job, error) {
	q := `
SELECT` + jobColumns + `
FROM ownlingo.jobs
WHERE job_uuid = $1::uuid
LIMIT 1
`

	job, err := scanJob(p.QueryRow(ctx, q, strings.TrimSpace(jobUUID)).Scan)
	if err != nil {
		if IsNoRows(err) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("query job by uuid: %w", err)
	}
	return job, nil
}

func (p *Pool) ClaimNextJob(ctx context.Context) (*jobs.Job, error) {
	q := `
UPDATE ownlingo.jobs j
SET status = 'running',
	started_at = now(),
	updated_at = now()
WHERE j.job_id = (
	SELECT job_id
	FROM ownlingo.jobs
	WHERE status = 'pending'
	ORDER BY priority DESC, created_at ASC, job_id ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
AND j.status = 'pending'
RETURNING` + jobColumns

	job, err := scanJob(p.QueryRow(ctx, q).Scan)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

func (p *Pool) ListJobItems(ctx context.Context, jobID int64) ([]*jobs.Item, error) {
	const q = `
SELECT
	item_id,
	item_uuid::text,
	job_id,
	resource_id,
	target_locale,
	status::text,
	retry_count,
	max_retries,
	error_message,
	translated_text,
	created_at,
	updated_at
FROM ownlingo.job_items
WHERE job_id = $1
ORDER BY item_id ASC
`

	rows, err := p.Query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job items: %w", err)
	}
	defer rows.Close()

	items := make([]*jobs.Item, 0, 16)
	for rows.Next() {
		var (
			item   jobs.Item
			status string
		)
		if err := rows.Scan(
			&item.ItemID,
			&item.ItemUUID,
			&item.JobID,
			&item.ResourceID,
			&item.TargetLocale,
			&status,
			&item.RetryCount,
			&item.MaxRetries,
			&item.ErrorMessage,
			&item.TranslatedText,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job item row: %w", err)
		}
		item.Status = jobs.ItemStatus(status)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job item rows: %w", err)
	}

	return items, nil
}

func (p *Pool) ClaimItem(ctx context.Context, itemID int64) (bool, error) {
	const q = `
UPDATE ownlingo.job_items
SET status = 'processing',
	updated_at = now()
WHERE item_id = $1
  AND status = 'pending'
`

	tag, err := p.Exec(ctx, q, itemID)
	if err != nil {
		return false, fmt.Errorf("claim job item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Pool) CompleteItem(ctx context.Context, itemID int64, translatedText string) error {
	const q = `
UPDATE ownlingo.job_items
SET status = 'completed',
	translated_text = $2,
	error_message = NULL,
	updated_at = now()
WHERE item_id = $1
`

	if _, err := p.Exec(ctx, q, itemID, translatedText); err != nil {
		return fmt.Errorf("complete job item: %w", err)
	}
	return nil
}

func (p *Pool) ResetItemForRetry(ctx context.Context, itemID int64, errMsg string) error {
	const q = `
UPDATE ownlingo.job_items
SET status = 'pending',
	retry_count = retry_count + 1,
	error_message = $2,
	updated_at = now()
WHERE item_id = $1
`

	if _, err := p.Exec(ctx, q, itemID, errMsg); err != nil {
		return fmt.Errorf("reset job item for retry: %w", err)
	}
	return nil
}

func (p *Pool) ReleaseItem(ctx context.Context, itemID int64) error {
	const q = `
UPDATE ownlingo.job_items
SET status = 'pending',
	updated_at = now()
WHERE item_id = $1
  AND status = 'processing'
`

	if _, err := p.Exec(ctx, q, itemID); err != nil {
		return fmt.Errorf("release job item: %w", err)
	}
	return nil
}

func (p *Pool) FailItem(ctx context.Context, itemID int64, errMsg string) error {
	const q = `
UPDATE ownlingo.job_items
SET status = 'failed',
	error_message = $2,
	updated_at = now()
WHERE item_id = $1
`

	if _, err := p.Exec(ctx, q, itemID, errMsg); err != nil {
		return fmt.Errorf("fail job item: %w", err)
	}
	return nil
}

func (p *Pool) UpdateJobCounters(ctx context.Context, jobID int64) (jobs.Progress, error) {
	const q = `
UPDATE ownlingo.jobs j
SET total_items = c.total,
	completed_items = c.completed,
	failed_items = c.failed,
	progress = CASE
		WHEN c.total = 0 THEN 0
		ELSE ((c.completed + c.failed) * 100) / c.total
	END,
	updated_at = now()
FROM (
	SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'completed') AS completed,
		COUNT(*) FILTER (WHERE status = 'failed') AS failed
	FROM ownlingo.job_items
	WHERE job_id = $1
) c
WHERE j.job_id = $1
RETURNING c.total, c.completed, c.failed, j.progress
`

	var progress jobs.Progress
	err := p.QueryRow(ctx, q, jobID).Scan(
		&progress.Total,
		&progress.Completed,
		&progress.Failed,
		&progress.Percent,
	)
	if err != nil {
		if IsNoRows(err) {
			return jobs.Progress{}, jobs.ErrJobNotFound
		}
		return jobs.Progress{}, fmt.Errorf("update job counters: %w", err)
	}
	return progress, nil
}

func (p *Pool) FinishJob(ctx context.Context, jobID int64, status jobs.JobStatus, errMsg *string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish job: status %q is not terminal", status)
	}

	const q = `
UPDATE ownlingo.jobs
SET status = $2::ownlingo.job_status,
	error_message = $3,
	completed_at = now(),
	updated_at = now()
WHERE job_id = $1
  AND status = 'running'
`

	tag, err := p.Exec(ctx, q, jobID, string(status), errMsg)
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Pool) CancelPendingJob(ctx context.Context, jobUUID string) (bool, error) {
	const q = `
UPDATE ownlingo.jobs
SET status = 'cancelled',
	completed_at = now(),
	updated_at = now()
WHERE job_uuid = $1::uuid
  AND status = 'pending'
`

	tag, err := p.Exec(ctx, q, strings.TrimSpace(jobUUID))
	if err != nil {
		return false, fmt.Errorf("cancel pending job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Pool) ResetFailedItems(ctx context.Context, jobUUID string) (int64, error) {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin retry transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const lockJob = `
SELECT job_id, status::text
FROM ownlingo.jobs
WHERE job_uuid = $1::uuid
FOR UPDATE
`

	var (
		jobID  int64
		status string
	)
	if err := tx.QueryRow(ctx, lockJob, strings.TrimSpace(jobUUID)).Scan(&jobID, &status); err != nil {
		if IsNoRows(err) {
			return 0, jobs.ErrJobNotFound
		}
		return 0, fmt.Errorf("lock job for retry: %w", err)
	}

	const resetItems = `
UPDATE ownlingo.job_items
SET status = 'pending',
	retry_count = 0,
	error_message = NULL,
	translated_text = NULL,
	updated_at = now()
WHERE job_id = $1
  AND status = 'failed'
`

	tag, err := tx.Exec(ctx, resetItems, jobID)
	if err != nil {
		return 0, fmt.Errorf("reset failed items: %w", err)
	}

	if jobs.JobStatus(status).Terminal() {
		const resetJob = `
UPDATE ownlingo.jobs
SET status = 'pending',
	error_message = NULL,
	started_at = NULL,
	completed_at = NULL,
	updated_at = now()
WHERE job_id = $1
`
		if _, err := tx.Exec(ctx, resetJob, jobID); err != nil {
			return 0, fmt.Errorf("reset job for retry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit retry transaction: %w", err)
	}
	committed = true
	return tag.RowsAffected(), nil
}

func (p *Pool) GetJobProgress(ctx context.Context, jobUUID string) (jobs.Progress, error) {
	const q = `
SELECT total_items, completed_items, failed_items, progress
FROM ownlingo.jobs
WHERE job_uuid = $1::uuid
LIMIT 1
`

	var progress jobs.Progress
	err := p.QueryRow(ctx, q, strings.TrimSpace(jobUUID)).Scan(
		&progress.Total,
		&progress.Completed,
		&progress.Failed,
		&progress.Percent,
	)
	if err != nil {
		if IsNoRows(err) {
			return jobs.Progress{}, jobs.ErrJobNotFound
		}
		return jobs.Progress{}, fmt.Errorf("query job progress: %w", err)
	}
	return progress, nil
}

func (p *Pool) ListJobs(ctx context.Context, status string, limit, offset int) ([]*jobs.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
SELECT` + jobColumns + `
FROM ownlingo.jobs
WHERE ($1 = '' OR status = $1::ownlingo.job_status)
ORDER BY created_at DESC, job_id DESC
LIMIT $2 OFFSET $3
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	list := make([]*jobs.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		list = append(list, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}

	return list, nil
}
