// Package db persists translation jobs, job items, the translation cache,
// and the read-only resource table in postgres. State transitions go through
// raw SQL so claim/finish semantics stay explicit; gorm is used for the
// connection, migrations, and nothing else.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ownlingo/ownlingo/internal/config"
	"github.com/ownlingo/ownlingo/internal/globaltime"
)

// ErrNoRows is the empty-result sentinel for all query helpers.
var ErrNoRows = sql.ErrNoRows

// IsNoRows reports whether err means an empty result.
func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}

// Pool wraps one gorm connection and exposes the raw-SQL surface the query
// files use. Methods are safe on a nil receiver.
type Pool struct {
	orm *gorm.DB
	std *sql.DB
}

// NewPool connects, tunes the connection pool, pings, and migrates the
// ownlingo schema.
func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	orm, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:  logger.Default.LogMode(gormLogLevel(cfg.LogLevel, cfg.Environment)),
		NowFunc: globaltime.UTC,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	std, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql db: %w", err)
	}

	maxOpen := int(cfg.DBMaxConns)
	if maxOpen <= 0 {
		maxOpen = 8
	}
	std.SetMaxOpenConns(maxOpen)
	std.SetMaxIdleConns(max(1, min(int(cfg.DBMinConns), maxOpen)))
	std.SetConnMaxIdleTime(5 * time.Minute)
	std.SetConnMaxLifetime(30 * time.Minute)

	if err := std.PingContext(ctx); err != nil {
		_ = std.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{orm: orm, std: std}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = std.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return pool, nil
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if p == nil || p.orm == nil {
		return &Row{}
	}
	return queryRow(p.orm, ctx, query, args...)
}

func (p *Pool) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	if p == nil || p.orm == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	return queryRows(p.orm, ctx, query, args...)
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	if p == nil || p.orm == nil {
		return CommandTag{}, fmt.Errorf("database pool is not initialized")
	}
	return execStatement(p.orm, ctx, query, args...)
}

func (p *Pool) BeginTx(ctx context.Context, _ TxOptions) (Tx, error) {
	if p == nil || p.orm == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	tx := p.orm.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{db: tx}, nil
}

func (p *Pool) Close() error {
	if p == nil || p.std == nil {
		return nil
	}
	return p.std.Close()
}

// DB exposes the underlying *sql.DB for health checks.
func (p *Pool) DB() *sql.DB {
	if p == nil {
		return nil
	}
	return p.std
}

// GORM exposes the gorm handle; only migration code should need it.
func (p *Pool) GORM() *gorm.DB {
	if p == nil {
		return nil
	}
	return p.orm
}

// TxOptions is reserved for isolation tuning; all current transactions run
// at the default level.
type TxOptions struct{}

// Tx is one database transaction with the same query surface as the Pool.
type Tx interface {
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	return queryRow(t.db, ctx, query, args...)
}

func (t *gormTx) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	return queryRows(t.db, ctx, query, args...)
}

func (t *gormTx) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	return execStatement(t.db, ctx, query, args...)
}

func (t *gormTx) Commit(ctx context.Context) error {
	return t.db.WithContext(ctx).Commit().Error
}

func (t *gormTx) Rollback(ctx context.Context) error {
	return t.db.WithContext(ctx).Rollback().Error
}

func queryRow(db *gorm.DB, ctx context.Context, query string, args ...any) *Row {
	return &Row{row: db.WithContext(ctx).Raw(query, args...).Row()}
}

func queryRows(db *gorm.DB, ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func execStatement(db *gorm.DB, ctx context.Context, query string, args ...any) (CommandTag, error) {
	res := db.WithContext(ctx).Exec(query, args...)
	return CommandTag{rowsAffected: res.RowsAffected}, res.Error
}

// CommandTag reports the row count of an Exec. Claim and finish statements
// read it to tell a won CAS from a lost one.
type CommandTag struct {
	rowsAffected int64
}

func (c CommandTag) RowsAffected() int64 {
	return c.rowsAffected
}

// Row wraps *sql.Row; scanning a zero Row yields ErrNoRows.
type Row struct {
	row *sql.Row
}

func (r *Row) Scan(dest ...any) error {
	if r == nil || r.row == nil {
		return ErrNoRows
	}
	return r.row.Scan(dest...)
}

// Rows wraps *sql.Rows with nil-safe iteration.
type Rows struct {
	rows *sql.Rows
}

func (r *Rows) Next() bool {
	if r == nil || r.rows == nil {
		return false
	}
	return r.rows.Next()
}

func (r *Rows) Scan(dest ...any) error {
	if r == nil || r.rows == nil {
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func (r *Rows) Err() error {
	if r == nil || r.rows == nil {
		return nil
	}
	return r.rows.Err()
}

func (r *Rows) Close() {
	if r == nil || r.rows == nil {
		return
	}
	_ = r.rows.Close()
}

func gormLogLevel(appLogLevel, environment string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(appLogLevel)) {
	case "trace", "debug":
		return logger.Info
	case "warn", "warning", "info", "":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		if strings.EqualFold(strings.TrimSpace(environment), "local") {
			return logger.Warn
		}
		return logger.Error
	}
}
