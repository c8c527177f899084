package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Skufu/cardiorisk/internal/model"
)

// SQLiteStore persists history in a local SQLite file.
type SQLiteStore struct {
	db       *sql.DB
	capacity int
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string, capacity int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, capacity: capacityOrDefault(capacity)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessment_history (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	summary     TEXT NOT NULL,
	model_tier  TEXT NOT NULL,
	confidence  REAL NOT NULL,
	final_tier  TEXT NOT NULL,
	flag_count  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
`

// Migrate creates the history table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Add(ctx context.Context, e model.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessment_history (id, summary, model_tier, confidence, final_tier, flag_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Summary, string(e.ModelTier), e.Confidence, string(e.FinalTier), e.FlagCount,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert history")
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM assessment_history WHERE seq NOT IN (
			SELECT seq FROM assessment_history ORDER BY seq DESC LIMIT ?)`,
		s.capacity,
	)
	return eris.Wrap(err, "sqlite: evict history")
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = s.capacity
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, summary, model_tier, confidence, final_tier, flag_count, created_at
		 FROM assessment_history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e                    model.HistoryEntry
			modelTier, finalTier string
			createdAt            string
		)
		if err := rows.Scan(&e.ID, &e.Summary, &modelTier, &e.Confidence, &finalTier, &e.FlagCount, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		e.ModelTier = model.Tier(modelTier)
		e.FinalTier = model.Tier(finalTier)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse created_at of %s", e.ID)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
