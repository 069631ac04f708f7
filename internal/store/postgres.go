package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// PGConfig controls the Postgres-backed ledger.
type PGConfig struct {
	DSN             string        `mapstructure:"dsn"`
	ArtifactDir     string        `mapstructure:"artifact_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PGStore keeps records and the ledger in one Postgres table; a row's
// presence is the ledger entry, so record and ledger commit atomically.
// Artifacts still land on the local filesystem in the standard layout.
type PGStore struct {
	pool        pgxPool
	artifactDir string
}

// NewPG connects a Postgres-backed store.
func NewPG(ctx context.Context, cfg PGConfig) (*PGStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required for the postgres backend")
	}
	if cfg.ArtifactDir == "" {
		return nil, fmt.Errorf("store.artifact_dir is required for the postgres backend")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PGStore{pool: pool, artifactDir: cfg.ArtifactDir}, nil
}

// NewPGWithPool constructs a store from an existing pool (primarily for
// testing).
func NewPGWithPool(pool pgxPool, artifactDir string) (*PGStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PGStore{pool: pool, artifactDir: artifactDir}, nil
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Processed reports whether the entity has a committed row.
func (s *PGStore) Processed(ctx context.Context, entityID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM emblem_records WHERE entity_id = $1`, entityID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

// Get returns the stored record, or emblem.ErrNotFound.
func (s *PGStore) Get(ctx context.Context, entityID string) (emblem.EmblemRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM emblem_records WHERE entity_id = $1`, entityID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return emblem.EmblemRecord{}, emblem.ErrNotFound
	}
	if err != nil {
		return emblem.EmblemRecord{}, fmt.Errorf("query record: %w", err)
	}
	var rec emblem.EmblemRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return emblem.EmblemRecord{}, fmt.Errorf("parse record %s: %w", entityID, err)
	}
	return rec, nil
}

// Commit writes the artifact files, then upserts the record row. The row is
// last so a crash mid-commit leaves only unledgered files behind.
func (s *PGStore) Commit(ctx context.Context, rec emblem.EmblemRecord, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if rec.EntityID == "" {
		return fmt.Errorf("record entity id is required")
	}

	if rec.Status == emblem.StatusDownloaded && len(artifact) > 0 {
		path, err := writeArtifactFiles(s.artifactDir, rec, artifact)
		if err != nil {
			return &emblem.StoreError{EntityID: rec.EntityID, Err: err}
		}
		rec.ArtifactPath = path
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return &emblem.StoreError{EntityID: rec.EntityID, Err: fmt.Errorf("marshal record: %w", err)}
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO emblem_records (entity_id, status, payload, decided_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (entity_id) DO UPDATE
SET status = EXCLUDED.status, payload = EXCLUDED.payload, decided_at = EXCLUDED.decided_at`,
		rec.EntityID, string(rec.Status), payload, rec.DecidedAt,
	)
	if err != nil {
		return &emblem.StoreError{EntityID: rec.EntityID, Err: fmt.Errorf("upsert record: %w", err)}
	}
	return nil
}

// Clear removes the ledger row so the entity is re-attempted.
func (s *PGStore) Clear(ctx context.Context, entityID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM emblem_records WHERE entity_id = $1`, entityID,
	); err != nil {
		return fmt.Errorf("clear ledger entry: %w", err)
	}
	return nil
}

// Records returns every committed record, ordered by entity ID.
func (s *PGStore) Records(ctx context.Context) ([]emblem.EmblemRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM emblem_records ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []emblem.EmblemRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		var rec emblem.EmblemRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("parse record payload: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
