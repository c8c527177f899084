package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Skufu/cardiorisk/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore persists history in Postgres.
type PostgresStore struct {
	pool     Pool
	capacity int
}

// NewPostgres connects to url and verifies the connection.
func NewPostgres(ctx context.Context, url string, capacity int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse db url")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping db")
	}

	return &PostgresStore{pool: pool, capacity: capacityOrDefault(capacity)}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessment_history (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	summary     TEXT NOT NULL,
	model_tier  TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	final_tier  TEXT NOT NULL,
	flag_count  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
)`

// Migrate creates the history table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Add(ctx context.Context, e model.HistoryEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessment_history (id, summary, model_tier, confidence, final_tier, flag_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Summary, string(e.ModelTier), e.Confidence, string(e.FinalTier), e.FlagCount, e.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert history")
	}
	_, err = s.pool.Exec(ctx,
		`DELETE FROM assessment_history WHERE seq NOT IN (
			SELECT seq FROM assessment_history ORDER BY seq DESC LIMIT $1)`,
		s.capacity,
	)
	return eris.Wrap(err, "postgres: evict history")
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = s.capacity
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, summary, model_tier, confidence, final_tier, flag_count, created_at
		 FROM assessment_history ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e                    model.HistoryEntry
			modelTier, finalTier string
		)
		if err := rows.Scan(&e.ID, &e.Summary, &modelTier, &e.Confidence, &finalTier, &e.FlagCount, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		e.ModelTier = model.Tier(modelTier)
		e.FinalTier = model.Tier(finalTier)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate history")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
