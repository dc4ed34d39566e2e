package db

import (
	"context"
	"fmt"

	"github.com/ownlingo/ownlingo/internal/jobs"
)

func (p *Pool) LookupCachedTranslation(ctx context.Context, contentHash []byte, targetLocale string) (*jobs.CacheEntry, error) {
	const q = `
SELECT
	content_hash,
	target_locale,
	translated_text,
	provider_name,
	model_name,
	created_at
FROM ownlingo.translation_cache
WHERE content_hash = $1
  AND target_locale = $2
LIMIT 1
`

	var entry jobs.CacheEntry
	err := p.QueryRow(ctx, q, contentHash, targetLocale).Scan(
		&entry.ContentHash,
		&entry.TargetLocale,
		&entry.TranslatedText,
		&entry.ProviderName,
		&entry.ModelName,
		&entry.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query cached translation: %w", err)
	}
	return &entry, nil
}

func (p *Pool) StoreCachedTranslation(ctx context.Context, entry *jobs.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	const q = `
INSERT INTO ownlingo.translation_cache (
	content_hash,
	target_locale,
	translated_text,
	provider_name,
	model_name
)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (content_hash, target_locale)
DO UPDATE SET
	translated_text = EXCLUDED.translated_text,
	provider_name = EXCLUDED.provider_name,
	model_name = EXCLUDED.model_name,
	created_at = now()
`

	if _, err := p.Exec(
		ctx,
		q,
		entry.ContentHash,
		entry.TargetLocale,
		entry.TranslatedText,
		entry.ProviderName,
		entry.ModelName,
	); err != nil {
		return fmt.Errorf("upsert cached translation: %w", err)
	}
	return nil
}
