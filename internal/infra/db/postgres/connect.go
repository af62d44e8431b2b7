package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"

	"github.com/bryanwahyu/imageproof/internal/infra/db/sqlrepo"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
  id                  TEXT PRIMARY KEY,
  owner_id            TEXT NOT NULL,
  image_url           TEXT NOT NULL,
  storage_id          TEXT NOT NULL,
  filename            TEXT NOT NULL,
  verdict             TEXT NOT NULL DEFAULT 'PENDING',
  confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
  artifact_score      DOUBLE PRECISION,
  pattern_consistency DOUBLE PRECISION,
  noise_analysis      DOUBLE PRECISION,
  color_distribution  DOUBLE PRECISION,
  edge_coherence      DOUBLE PRECISION,
  metadata_score      DOUBLE PRECISION,
  created_at          BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_owner_created ON analyses(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);`

// Migrate creates the analyses table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return eris.Wrap(err, "postgres: migrate")
}

func NewAnalysisRepository(db *sql.DB) *sqlrepo.AnalysisRepository {
	return sqlrepo.NewAnalysisRepository(db, sqlrepo.Postgres)
}
