package sqlite

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/imageproof/internal/infra/db/sqlrepo"
)

// Open opens a SQLite database at path and configures WAL mode.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// one writer; scoring tasks and requests share the handle
	db.SetMaxOpenConns(1)
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
	confidence          REAL NOT NULL DEFAULT 0,
	artifact_score      REAL,
	pattern_consistency REAL,
	noise_analysis      REAL,
	color_distribution  REAL,
	edge_coherence      REAL,
	metadata_score      REAL,
	created_at          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_owner_created ON analyses(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`

// Migrate creates the analyses table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return eris.Wrap(err, "sqlite: migrate")
}

func NewAnalysisRepository(db *sql.DB) *sqlrepo.AnalysisRepository {
	return sqlrepo.NewAnalysisRepository(db, sqlrepo.SQLite)
}
