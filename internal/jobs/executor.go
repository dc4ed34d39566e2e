package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

// ExecutorConfig tunes per-item retry pacing.
type ExecutorConfig struct {
	// ItemRetryDelay is the base backoff before reprocessing a reset item.
	ItemRetryDelay time.Duration
}

// Executor runs one claimed job to a terminal status. Items are processed
// serially in creation order.
type Executor struct {
	store     Store
	resources ResourceStore
	cache     Cache
	chain     translator.AITranslator
	bus       *Bus
	backoff   *retry.Config
	logger    zerolog.Logger

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(store Store, resources ResourceStore, cache Cache, chain translator.AITranslator, bus *Bus, cfg ExecutorConfig, logger zerolog.Logger) *Executor {
	delay := cfg.ItemRetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Executor{
		store:     store,
		resources: resources,
		cache:     cache,
		chain:     chain,
		bus:       bus,
		backoff: &retry.Config{
			InitialBackoff: delay,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
		logger: logger.With().Str("component", "job-executor").Logger(),
		sleep:  sleepContext,
	}
}

// Run drives the job to exactly one terminal status. cancelled is the
// scheduler's cooperative flag, checked only at item boundaries.
func (e *Executor) Run(ctx context.Context, job *Job, cancelled func() bool) {
	if e == nil || job == nil {
		return
	}
	logger := e.logger.With().Str("job_uuid", job.JobUUID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("job executor panicked")
			msg := fmt.Sprintf("executor panic: %v", r)
			e.finalize(job, JobStatusFailed, &msg)
		}
	}()

	// Run owns the job lifecycle from claim to terminal status, so store
	// calls use a background context: an interrupted job must still be
	// finalized or released consistently.
	items, err := e.store.ListJobItems(context.Background(), job.JobID)
	if err != nil {
		logger.Error().Err(err).Msg("list job items failed")
		msg := fmt.Sprintf("list job items: %v", err)
		e.finalize(job, JobStatusFailed, &msg)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil || cancelled() {
			e.finalize(job, JobStatusCancelled, nil)
			return
		}
		if item.Status != ItemStatusPending {
			continue
		}

		if err := e.runItem(ctx, job, item, logger); err != nil {
			// Interrupted mid-item; the item was released, not failed.
			e.finalize(job, JobStatusCancelled, nil)
			return
		}

		progress, err := e.store.UpdateJobCounters(context.Background(), job.JobID)
		if err != nil {
			logger.Error().Err(err).Msg("update job counters failed")
			continue
		}
		e.bus.Publish(Event{
			Kind:      EventProgress,
			JobUUID:   job.JobUUID,
			JobID:     job.JobID,
			Total:     progress.Total,
			Completed: progress.Completed,
			Failed:    progress.Failed,
			Progress:  progress.Percent,
		})
	}

	e.finalize(job, JobStatusCompleted, nil)
}

// runItem processes one item through claim, cache, chain, and retry. A
// non-nil return means execution was interrupted by cancellation and the item
// was released, not failed.
func (e *Executor) runItem(ctx context.Context, job *Job, item *Item, logger zerolog.Logger) error {
	for {
		claimed, err := e.store.ClaimItem(context.Background(), item.ItemID)
		if err != nil {
			logger.Error().Err(err).Int64("item_id", item.ItemID).Msg("claim item failed")
			return nil
		}
		if !claimed {
			return nil
		}

		translateErr := e.translateItem(ctx, job, item)
		if translateErr == nil {
			return nil
		}

		// Providers may wrap a mid-retry abort in their own error type, so
		// consult the context directly as well as the returned error.
		if ctx.Err() != nil || errors.Is(translateErr, context.Canceled) || errors.Is(translateErr, context.DeadlineExceeded) {
			if err := e.store.ReleaseItem(context.Background(), item.ItemID); err != nil {
				logger.Error().Err(err).Int64("item_id", item.ItemID).Msg("release item failed")
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return translateErr
		}

		if retry.IsRetryable(translateErr) && item.RetryCount < item.MaxRetries {
			if err := e.store.ResetItemForRetry(context.Background(), item.ItemID, translateErr.Error()); err != nil {
				logger.Error().Err(err).Int64("item_id", item.ItemID).Msg("reset item for retry failed")
				return nil
			}
			item.RetryCount++
			e.bus.Publish(Event{
				Kind:       EventItemRetry,
				JobUUID:    job.JobUUID,
				JobID:      job.JobID,
				ItemID:     item.ItemID,
				ResourceID: item.ResourceID,
				Error:      translateErr.Error(),
				RetryCount: item.RetryCount,
			})

			if err := e.sleep(ctx, e.backoff.BackoffFor(item.RetryCount-1)); err != nil {
				if releaseErr := e.store.ReleaseItem(context.Background(), item.ItemID); releaseErr != nil {
					logger.Error().Err(releaseErr).Int64("item_id", item.ItemID).Msg("release item failed")
				}
				return err
			}
			continue
		}

		if err := e.store.FailItem(context.Background(), item.ItemID, translateErr.Error()); err != nil {
			logger.Error().Err(err).Int64("item_id", item.ItemID).Msg("fail item failed")
			return nil
		}
		e.bus.Publish(Event{
			Kind:       EventItemFailed,
			JobUUID:    job.JobUUID,
			JobID:      job.JobID,
			ItemID:     item.ItemID,
			ResourceID: item.ResourceID,
			Error:      translateErr.Error(),
			RetryCount: item.RetryCount,
		})
		logger.Warn().
			Int64("item_id", item.ItemID).
			Str("resource_id", item.ResourceID).
			Str("target_locale", item.TargetLocale).
			Err(translateErr).
			Msg("job item failed")
		return nil
	}
}

func (e *Executor) translateItem(ctx context.Context, job *Job, item *Item) error {
	res, err := e.resources.GetResource(ctx, item.ResourceID)
	if err != nil {
		return fmt.Errorf("load resource %s: %w", item.ResourceID, err)
	}
	if res == nil {
		return fmt.Errorf("resource %s: %w", item.ResourceID, translator.ErrResourceNotFound)
	}

	if e.cache != nil {
		entry, err := e.cache.LookupCachedTranslation(ctx, res.ContentHash, item.TargetLocale)
		if err != nil {
			e.logger.Warn().Err(err).Str("resource_id", item.ResourceID).Msg("cache lookup failed")
		} else if entry != nil {
			if err := e.store.CompleteItem(context.Background(), item.ItemID, entry.TranslatedText); err != nil {
				return fmt.Errorf("complete item from cache: %w", err)
			}
			e.bus.Publish(Event{
				Kind:       EventItemCacheHit,
				JobUUID:    job.JobUUID,
				JobID:      job.JobID,
				ItemID:     item.ItemID,
				ResourceID: item.ResourceID,
			})
			return nil
		}
	}

	resp, err := e.chain.Translate(ctx, &translator.TranslationRequest{
		Text:           res.Content,
		SourceLocale:   job.SourceLocale,
		TargetLocale:   item.TargetLocale,
		PreserveHTML:   res.PreserveHTML,
		PreserveLiquid: res.PreserveLiquid,
	})
	if err != nil {
		return err
	}

	if e.cache != nil {
		if err := e.cache.StoreCachedTranslation(context.Background(), &CacheEntry{
			ContentHash:    res.ContentHash,
			TargetLocale:   item.TargetLocale,
			TranslatedText: resp.TranslatedText,
			ProviderName:   resp.Provider,
			ModelName:      resp.Model,
		}); err != nil {
			// A lost cache write costs a future provider call, nothing more.
			e.logger.Warn().Err(err).Str("resource_id", item.ResourceID).Msg("cache store failed")
		}
	}

	if err := e.store.CompleteItem(context.Background(), item.ItemID, resp.TranslatedText); err != nil {
		return fmt.Errorf("complete item: %w", err)
	}
	e.bus.Publish(Event{
		Kind:       EventItemCompleted,
		JobUUID:    job.JobUUID,
		JobID:      job.JobID,
		ItemID:     item.ItemID,
		ResourceID: item.ResourceID,
	})
	return nil
}

// finalize applies the terminal status exactly once. The CAS inside
// FinishJob makes a lost race a silent no-op.
func (e *Executor) finalize(job *Job, status JobStatus, errMsg *string) {
	finished, err := e.store.FinishJob(context.Background(), job.JobID, status, errMsg)
	if err != nil {
		e.logger.Error().Err(err).Str("job_uuid", job.JobUUID).Msg("finish job failed")
		return
	}
	if !finished {
		return
	}

	progress, err := e.store.GetJobProgress(context.Background(), job.JobUUID)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_uuid", job.JobUUID).Msg("read final job progress failed")
	}

	kind := EventJobCompleted
	switch status {
	case JobStatusFailed:
		kind = EventJobFailed
	case JobStatusCancelled:
		kind = EventJobCancelled
	}
	event := Event{
		Kind:      kind,
		JobUUID:   job.JobUUID,
		JobID:     job.JobID,
		Total:     progress.Total,
		Completed: progress.Completed,
		Failed:    progress.Failed,
		Progress:  progress.Percent,
	}
	if errMsg != nil {
		event.Error = *errMsg
	}
	e.bus.Publish(event)

	e.logger.Info().
		Str("job_uuid", job.JobUUID).
		Str("status", string(status)).
		Int("completed", progress.Completed).
		Int("failed", progress.Failed).
		Msg("job finished")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
