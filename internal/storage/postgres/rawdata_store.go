// Package postgres provides Postgres-backed persistence for the cleaning
// pipeline: the raw data gateway and the normalized entity store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
)

// PoolConfig controls the shared Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbconn is the slice of pgxpool.Pool the stores need; pgxmock satisfies it.
type dbconn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// NewPool builds a pgx pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// RawDataStore reads raw payload documents and flips their status.
type RawDataStore struct {
	pool dbconn
}

// NewRawDataStore constructs a store over an existing pool.
func NewRawDataStore(pool dbconn) (*RawDataStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RawDataStore{pool: pool}, nil
}

const getRawDataSQL = `
SELECT id, source_type, source_url, raw_content, status, COALESCE(error_message, ''), processed_at, created_at
FROM raw_data
WHERE id = $1`

// GetRawData fetches one raw data record by id.
func (s *RawDataStore) GetRawData(ctx context.Context, id string) (clean.RawDataRecord, error) {
	var rec clean.RawDataRecord
	err := s.pool.QueryRow(ctx, getRawDataSQL, id).Scan(
		&rec.ID,
		&rec.SourceType,
		&rec.SourceURL,
		&rec.RawContent,
		&rec.Status,
		&rec.ErrorMessage,
		&rec.ProcessedAt,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return clean.RawDataRecord{}, fmt.Errorf("%w: %s", clean.ErrRawDataNotFound, id)
	}
	if err != nil {
		return clean.RawDataRecord{}, fmt.Errorf("get raw data %s: %w", id, err)
	}
	return rec, nil
}

const markProcessedSQL = `
UPDATE raw_data
SET status = 'processed', error_message = NULL, processed_at = $2
WHERE id = $1`

// MarkProcessed flips a record to processed exactly once per attempt.
func (s *RawDataStore) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, markProcessedSQL, id, at)
	if err != nil {
		return fmt.Errorf("mark raw data %s processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", clean.ErrRawDataNotFound, id)
	}
	return nil
}

const markFailedSQL = `
UPDATE raw_data
SET status = 'failed', error_message = $2, processed_at = $3
WHERE id = $1`

// MarkFailed flips a record to failed with a descriptive message.
func (s *RawDataStore) MarkFailed(ctx context.Context, id string, message string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, markFailedSQL, id, message, at)
	if err != nil {
		return fmt.Errorf("mark raw data %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", clean.ErrRawDataNotFound, id)
	}
	return nil
}
