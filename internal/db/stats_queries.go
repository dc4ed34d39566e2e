package db

import (
	"context"
	"fmt"

	"github.com/ownlingo/ownlingo/internal/jobs"
)

func (p *Pool) GetStats(ctx context.Context) (*jobs.Stats, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM ownlingo.jobs WHERE status = 'pending'),
	(SELECT COUNT(*) FROM ownlingo.jobs WHERE status = 'running'),
	(SELECT COUNT(*) FROM ownlingo.jobs WHERE status = 'completed'),
	(SELECT COUNT(*) FROM ownlingo.jobs WHERE status = 'failed'),
	(SELECT COUNT(*) FROM ownlingo.jobs WHERE status = 'cancelled'),
	(SELECT COUNT(*) FROM ownlingo.job_items),
	(SELECT COUNT(*) FROM ownlingo.translation_cache)
`

	var stats jobs.Stats
	err := p.QueryRow(ctx, q).Scan(
		&stats.PendingJobs,
		&stats.RunningJobs,
		&stats.CompletedJobs,
		&stats.FailedJobs,
		&stats.CancelledJobs,
		&stats.TotalItems,
		&stats.CachedTranslations,
	)
	if err != nil {
		return nil, fmt.Errorf("query engine stats: %w", err)
	}
	return &stats, nil
}
