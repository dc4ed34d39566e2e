package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/ownlingo/ownlingo/internal/jobs"
)

const resourceColumns = `
	resource_id,
	locale,
	content,
	content_hash,
	preserve_html,
	preserve_liquid`

func scanResource(scan func(dest ...any) error) (*jobs.Resource, error) {
	var res jobs.Resource
	err := scan(
		&res.ResourceID,
		&res.Locale,
		&res.Content,
		&res.ContentHash,
		&res.PreserveHTML,
		&res.PreserveLiquid,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *Pool) GetResource(ctx context.Context, resourceID string) (*jobs.Resource, error) {
	q := `
SELECT` + resourceColumns + `
FROM ownlingo.resources
WHERE resource_id = $1
LIMIT 1
`

	res, err := scanResource(p.QueryRow(ctx, q, strings.TrimSpace(resourceID)).Scan)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query resource: %w", err)
	}
	return res, nil
}

func (p *Pool) ListResourcesForSource(ctx context.Context, sourceLocale string) ([]*jobs.Resource, error) {
	q := `
SELECT` + resourceColumns + `
FROM ownlingo.resources
WHERE locale = $1
   OR locale = ''
ORDER BY resource_id ASC
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(sourceLocale))
	if err != nil {
		return nil, fmt.Errorf("query resources for source locale: %w", err)
	}
	defer rows.Close()

	return collectResources(rows)
}

func (p *Pool) ListStaleResources(ctx context.Context, sourceLocale string, targetLocales []string) ([]*jobs.Resource, error) {
	q := `
SELECT` + resourceColumns + `
FROM ownlingo.resources r
WHERE (r.locale = $1 OR r.locale = '')
  AND EXISTS (
	SELECT 1
	FROM unnest(string_to_array($2, ',')) AS tl(target_locale)
	WHERE NOT EXISTS (
		SELECT 1
		FROM ownlingo.translation_cache c
		WHERE c.content_hash = r.content_hash
		  AND c.target_locale = tl.target_locale
	)
  )
ORDER BY r.resource_id ASC
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(sourceLocale), strings.Join(targetLocales, ","))
	if err != nil {
		return nil, fmt.Errorf("query stale resources: %w", err)
	}
	defer rows.Close()

	return collectResources(rows)
}

func collectResources(rows *Rows) ([]*jobs.Resource, error) {
	items := make([]*jobs.Resource, 0, 64)
	for rows.Next() {
		res, err := scanResource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		items = append(items, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource rows: %w", err)
	}
	return items, nil
}
