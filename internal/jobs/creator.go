package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ownlingo/ownlingo/internal/langdetect"
	"github.com/ownlingo/ownlingo/internal/language"
	"github.com/ownlingo/ownlingo/internal/translator"
)

// Notifier wakes the scheduler when new work arrives. The scheduler
// implements it; tests substitute a stub.
type Notifier interface {
	Notify()
}

// CreateParams describes one create-job request after transport-level
// validation.
type CreateParams struct {
	Type          JobType
	SourceLocale  string
	TargetLocales []string
	Priority      int
	ResourceID    string
	MaxRetries    int
}

// CreatorConfig tunes job creation defaults.
type CreatorConfig struct {
	// DefaultMaxRetries is the per-item retry budget applied when the
	// request does not set one.
	DefaultMaxRetries int
}

// Creator fans a create request out into a job with one item per
// resource+target-locale pair.
type Creator struct {
	store     Store
	resources ResourceStore
	cache     Cache
	notifier  Notifier
	cfg       CreatorConfig
	logger    zerolog.Logger
}

func NewCreator(store Store, resources ResourceStore, cache Cache, notifier Notifier, cfg CreatorConfig, logger zerolog.Logger) *Creator {
	return &Creator{
		store:     store,
		resources: resources,
		cache:     cache,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With().Str("component", "job-creator").Logger(),
	}
}

// Create validates the request, selects resources per the job type, inserts
// the job with its items in one transaction, and wakes the scheduler.
func (c *Creator) Create(ctx context.Context, params CreateParams) (*Job, error) {
	if c == nil || c.store == nil || c.resources == nil {
		return nil, fmt.Errorf("job creator is not initialized")
	}

	if !params.Type.Valid() {
		return nil, fmt.Errorf("invalid job type %q", params.Type)
	}
	sourceLocale := language.NormalizeTag(params.SourceLocale)
	if sourceLocale == "" {
		return nil, fmt.Errorf("source locale is required")
	}
	targetLocales := language.NormalizeTags(params.TargetLocales)
	if len(targetLocales) == 0 {
		return nil, fmt.Errorf("at least one target locale is required")
	}
	for _, target := range targetLocales {
		if target == sourceLocale {
			return nil, fmt.Errorf("target locale %q equals the source locale", target)
		}
	}
	if params.Type == JobTypeSingle && strings.TrimSpace(params.ResourceID) == "" {
		return nil, fmt.Errorf("single jobs require a resource id")
	}
	if params.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0")
	}
	maxRetries := params.MaxRetries
	if maxRetries == 0 {
		maxRetries = c.cfg.DefaultMaxRetries
	}

	resources, err := c.selectResources(ctx, params, sourceLocale, targetLocales)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources match source locale %q", sourceLocale)
	}

	job := &Job{
		JobUUID:       uuid.NewString(),
		Type:          params.Type,
		Priority:      params.Priority,
		SourceLocale:  sourceLocale,
		TargetLocales: targetLocales,
	}

	items := make([]*Item, 0, len(resources)*len(targetLocales))
	for _, res := range resources {
		for _, target := range targetLocales {
			items = append(items, &Item{
				ResourceID:   res.ResourceID,
				TargetLocale: target,
				MaxRetries:   maxRetries,
			})
		}
	}

	if err := c.store.CreateJob(ctx, job, items); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	c.logger.Info().
		Str("job_uuid", job.JobUUID).
		Str("job_type", string(job.Type)).
		Str("source_locale", sourceLocale).
		Strs("target_locales", targetLocales).
		Int("items", len(items)).
		Msg("job created")

	if c.notifier != nil {
		c.notifier.Notify()
	}
	return job, nil
}

func (c *Creator) selectResources(ctx context.Context, params CreateParams, sourceLocale string, targetLocales []string) ([]*Resource, error) {
	switch params.Type {
	case JobTypeSingle:
		res, err := c.resources.GetResource(ctx, params.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("load resource %s: %w", params.ResourceID, err)
		}
		if res == nil {
			return nil, fmt.Errorf("resource %s: %w", params.ResourceID, translator.ErrResourceNotFound)
		}
		return c.filterBySource([]*Resource{res}, sourceLocale), nil

	case JobTypeFull:
		list, err := c.resources.ListResourcesForSource(ctx, sourceLocale)
		if err != nil {
			return nil, fmt.Errorf("list resources for %s: %w", sourceLocale, err)
		}
		return c.filterBySource(list, sourceLocale), nil

	case JobTypeIncremental:
		list, err := c.resources.ListStaleResources(ctx, sourceLocale, targetLocales)
		if err != nil {
			return nil, fmt.Errorf("list stale resources for %s: %w", sourceLocale, err)
		}
		return c.filterBySource(list, sourceLocale), nil
	}
	return nil, fmt.Errorf("invalid job type %q", params.Type)
}

// filterBySource keeps resources whose locale matches the job's source
// locale. Rows without a recorded locale go through language detection on
// their content first.
func (c *Creator) filterBySource(list []*Resource, sourceLocale string) []*Resource {
	kept := make([]*Resource, 0, len(list))
	for _, res := range list {
		locale := language.NormalizeTag(res.Locale)
		if locale == "" {
			locale = langdetect.DetectISO6391(res.Content)
			if locale == "" {
				c.logger.Debug().
					Str("resource_id", res.ResourceID).
					Msg("skipping resource with undetectable locale")
				continue
			}
		}
		if !sameLanguage(locale, sourceLocale) {
			continue
		}
		kept = append(kept, res)
	}
	return kept
}

// sameLanguage compares on the primary language subtag, so a detected "en"
// matches a requested "en-us".
func sameLanguage(a, b string) bool {
	return language.NormalizeCode(a) == language.NormalizeCode(b)
}
