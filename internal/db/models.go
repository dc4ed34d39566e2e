package db

import (
	"time"
)

// JobRow maps ownlingo.jobs.
type JobRow struct {
	JobID          int64      `gorm:"column:job_id;primaryKey;autoIncrement"`
	JobUUID        string     `gorm:"column:job_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	JobType        string     `gorm:"column:job_type;type:ownlingo.job_type;not null"`
	Status         string     `gorm:"column:status;type:ownlingo.job_status;not null;default:pending"`
	Priority       int        `gorm:"column:priority;type:integer;not null;default:0"`
	SourceLocale   string     `gorm:"column:source_locale;type:text;not null"`
	TargetLocales  string     `gorm:"column:target_locales;type:text[];not null"`
	TotalItems     int        `gorm:"column:total_items;type:integer;not null;default:0"`
	CompletedItems int        `gorm:"column:completed_items;type:integer;not null;default:0"`
	FailedItems    int        `gorm:"column:failed_items;type:integer;not null;default:0"`
	Progress       int16      `gorm:"column:progress;type:smallint;not null;default:0"`
	ErrorMessage   *string    `gorm:"column:error_message;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
	StartedAt      *time.Time `gorm:"column:started_at;type:timestamptz"`
	CompletedAt    *time.Time `gorm:"column:completed_at;type:timestamptz"`
}

func (JobRow) TableName() string { return "ownlingo.jobs" }

// JobItemRow maps ownlingo.job_items.
type JobItemRow struct {
	ItemID         int64     `gorm:"column:item_id;primaryKey;autoIncrement"`
	ItemUUID       string    `gorm:"column:item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	JobID          int64     `gorm:"column:job_id;type:bigint;not null"`
	ResourceID     string    `gorm:"column:resource_id;type:text;not null"`
	TargetLocale   string    `gorm:"column:target_locale;type:text;not null"`
	Status         string    `gorm:"column:status;type:ownlingo.item_status;not null;default:pending"`
	RetryCount     int       `gorm:"column:retry_count;type:integer;not null;default:0"`
	MaxRetries     int       `gorm:"column:max_retries;type:integer;not null;default:3"`
	ErrorMessage   *string   `gorm:"column:error_message;type:text"`
	TranslatedText *string   `gorm:"column:translated_text;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (JobItemRow) TableName() string { return "ownlingo.job_items" }

// TranslationCacheRow maps ownlingo.translation_cache.
type TranslationCacheRow struct {
	CacheID        int64     `gorm:"column:cache_id;primaryKey;autoIncrement"`
	ContentHash    []byte    `gorm:"column:content_hash;type:bytea;not null;uniqueIndex:uq_translation_cache_hash_locale"`
	TargetLocale   string    `gorm:"column:target_locale;type:text;not null;uniqueIndex:uq_translation_cache_hash_locale"`
	TranslatedText string    `gorm:"column:translated_text;type:text;not null"`
	ProviderName   string    `gorm:"column:provider_name;type:text;not null"`
	ModelName      string    `gorm:"column:model_name;type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (TranslationCacheRow) TableName() string { return "ownlingo.translation_cache" }

// ResourceRow maps ownlingo.resources. Rows are owned by the upstream content
// system; the engine only reads them.
type ResourceRow struct {
	ResourceID     string    `gorm:"column:resource_id;type:text;primaryKey"`
	Locale         string    `gorm:"column:locale;type:text;not null;default:''"`
	Content        string    `gorm:"column:content;type:text;not null"`
	ContentHash    []byte    `gorm:"column:content_hash;type:bytea;not null"`
	PreserveHTML   bool      `gorm:"column:preserve_html;type:boolean;not null;default:false"`
	PreserveLiquid bool      `gorm:"column:preserve_liquid;type:boolean;not null;default:false"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ResourceRow) TableName() string { return "ownlingo.resources" }

func autoMigrateModels() []any {
	return []any{
		&JobRow{},
		&JobItemRow{},
		&TranslationCacheRow{},
		&ResourceRow{},
	}
}
