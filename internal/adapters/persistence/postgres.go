package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hxuan190/zap-engine/internal/services/txn"
)

const receiptsSchema = `
CREATE TABLE IF NOT EXISTS zap_receipts (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	steps       TEXT[] NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_us BIGINT NOT NULL
)`

// PostgresJournal writes committed receipts to Postgres.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

var _ txn.Journal = (*PostgresJournal)(nil)

// NewPostgresJournal connects to dsn and creates the receipts table.
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, receiptsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create receipts table: %w", err)
	}
	return &PostgresJournal{pool: pool}, nil
}

func (j *PostgresJournal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

// Append implements txn.Journal. Appending the same receipt twice is a no-op.
func (j *PostgresJournal) Append(ctx context.Context, r txn.Receipt) error {
	steps := r.Steps
	if steps == nil {
		steps = []string{}
	}
	_, err := j.pool.Exec(ctx, `
		INSERT INTO zap_receipts (id, label, steps, started_at, duration_us)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Label, steps, r.StartedAt, r.Duration.Microseconds())
	if err != nil {
		return fmt.Errorf("insert receipt %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit receipts, newest first.
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]txn.Receipt, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT id, label, steps, started_at, duration_us
		FROM zap_receipts
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (txn.Receipt, error) {
		var (
			r          txn.Receipt
			durationUs int64
		)
		if err := row.Scan(&r.ID, &r.Label, &r.Steps, &r.StartedAt, &durationUs); err != nil {
			return txn.Receipt{}, err
		}
		r.Duration = time.Duration(durationUs) * time.Microsecond
		return r, nil
	})
}
