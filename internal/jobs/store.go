package jobs

import "context"

// Store is the persistence boundary for jobs and job items. Implementations
// must make the claim and finish transitions atomic so two schedulers or two
// executors never process the same row.
type Store interface {
	// CreateJob inserts the job and all of its items in one transaction and
	// fills in generated IDs on the passed structs.
	CreateJob(ctx context.Context, job *Job, items []*Item) error

	// GetJobByUUID returns ErrJobNotFound when no row matches.
	GetJobByUUID(ctx context.Context, jobUUID string) (*Job, error)

	// ClaimNextJob atomically transitions the highest-priority pending job to
	// running and returns it. Returns (nil, nil) when no pending job exists.
	ClaimNextJob(ctx context.Context) (*Job, error)

	// ListJobItems returns the job's items in creation order.
	ListJobItems(ctx context.Context, jobID int64) ([]*Item, error)

	// ClaimItem transitions one item pending→processing. Returns false when
	// the item was not pending, which means another executor got there first.
	ClaimItem(ctx context.Context, itemID int64) (bool, error)

	// CompleteItem marks the item completed and records its translation.
	CompleteItem(ctx context.Context, itemID int64, translatedText string) error

	// ResetItemForRetry increments retry_count, records the error, and puts
	// the item back to pending for another attempt.
	ResetItemForRetry(ctx context.Context, itemID int64, errMsg string) error

	// ReleaseItem puts a processing item back to pending without touching
	// its retry budget. Used when execution is interrupted, not failed.
	ReleaseItem(ctx context.Context, itemID int64) error

	// FailItem marks the item failed with the final error.
	FailItem(ctx context.Context, itemID int64, errMsg string) error

	// UpdateJobCounters recomputes the job's counters and progress from its
	// item rows and returns the fresh snapshot.
	UpdateJobCounters(ctx context.Context, jobID int64) (Progress, error)

	// FinishJob transitions a running job to the given terminal status.
	// Returns false when the job was not running, which means it was already
	// finalized.
	FinishJob(ctx context.Context, jobID int64, status JobStatus, errMsg *string) (bool, error)

	// CancelPendingJob transitions a pending job directly to cancelled.
	// Returns false when the job was not pending.
	CancelPendingJob(ctx context.Context, jobUUID string) (bool, error)

	// ResetFailedItems resets the job's failed items to pending with a fresh
	// retry budget and, when the job is terminal, puts the job back to
	// pending. Returns the number of items reset.
	ResetFailedItems(ctx context.Context, jobUUID string) (int64, error)

	// GetJobProgress returns the stored counter snapshot, or ErrJobNotFound.
	GetJobProgress(ctx context.Context, jobUUID string) (Progress, error)

	// ListJobs returns jobs newest-first, optionally filtered by status.
	ListJobs(ctx context.Context, status string, limit, offset int) ([]*Job, error)

	// GetStats returns an engine-wide summary.
	GetStats(ctx context.Context) (*Stats, error)
}

// ResourceStore reads the upstream content rows jobs translate. The engine
// never writes resources.
type ResourceStore interface {
	// GetResource returns (nil, nil) when the resource does not exist.
	GetResource(ctx context.Context, resourceID string) (*Resource, error)

	// ListResourcesForSource returns resources whose locale matches, plus
	// rows with no recorded locale so the caller can run detection on them.
	ListResourcesForSource(ctx context.Context, sourceLocale string) ([]*Resource, error)

	// ListStaleResources returns resources in the source locale that lack a
	// cache entry matching their current content hash for at least one of the
	// target locales.
	ListStaleResources(ctx context.Context, sourceLocale string, targetLocales []string) ([]*Resource, error)
}

// Cache stores finished translations keyed by content hash and target locale.
type Cache interface {
	// LookupCachedTranslation returns (nil, nil) on a miss.
	LookupCachedTranslation(ctx context.Context, contentHash []byte, targetLocale string) (*CacheEntry, error)

	// StoreCachedTranslation upserts; concurrent writers race and the last
	// write wins.
	StoreCachedTranslation(ctx context.Context, entry *CacheEntry) error
}
