// Package jobs contains the translation job domain: job and item state,
// creation fan-out, scheduling, and execution.
package jobs

import (
	"errors"
	"time"
)

var (
	// ErrJobNotFound reports a job UUID with no matching row.
	ErrJobNotFound = errors.New("job not found")

	// ErrSchedulerRunning reports a second Start on an active scheduler.
	ErrSchedulerRunning = errors.New("scheduler is already running")
)

type JobType string

const (
	JobTypeFull        JobType = "full"
	JobTypeIncremental JobType = "incremental"
	JobTypeSingle      JobType = "single"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeFull, JobTypeIncremental, JobTypeSingle:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions except an
// explicit retry reset.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// Job is one bulk translation job.
type Job struct {
	JobID          int64
	JobUUID        string
	Type           JobType
	Status         JobStatus
	Priority       int
	SourceLocale   string
	TargetLocales  []string
	TotalItems     int
	CompletedItems int
	FailedItems    int
	Progress       int
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Item is one resource+target-locale unit of work inside a job.
type Item struct {
	ItemID         int64
	ItemUUID       string
	JobID          int64
	ResourceID     string
	TargetLocale   string
	Status         ItemStatus
	RetryCount     int
	MaxRetries     int
	ErrorMessage   *string
	TranslatedText *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Resource is a read-only translatable content row owned by the upstream
// content system.
type Resource struct {
	ResourceID     string
	Locale         string
	Content        string
	ContentHash    []byte
	PreserveHTML   bool
	PreserveLiquid bool
}

// CacheEntry is one cached translation keyed by content hash and target
// locale.
type CacheEntry struct {
	ContentHash    []byte
	TargetLocale   string
	TranslatedText string
	ProviderName   string
	ModelName      string
	CreatedAt      time.Time
}

// Progress is a job's counter snapshot. Percent is derived from the counters,
// not stored independently.
type Progress struct {
	Total     int
	Completed int
	Failed    int
	Percent   int
}

// Stats summarizes engine state for the stats endpoint.
type Stats struct {
	PendingJobs        int64
	RunningJobs        int64
	CompletedJobs      int64
	FailedJobs         int64
	CancelledJobs      int64
	TotalItems         int64
	CachedTranslations int64
}
