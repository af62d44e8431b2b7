package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"

	"github.com/bryanwahyu/imageproof/internal/infra/db/sqlrepo"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: open")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "mysql: ping")
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
  id                  VARCHAR(64)  NOT NULL PRIMARY KEY,
  owner_id            VARCHAR(255) NOT NULL,
  image_url           TEXT         NOT NULL,
  storage_id          VARCHAR(512) NOT NULL,
  filename            VARCHAR(255) NOT NULL,
  verdict             VARCHAR(16)  NOT NULL DEFAULT 'PENDING',
  confidence          DOUBLE       NOT NULL DEFAULT 0,
  artifact_score      DOUBLE       NULL,
  pattern_consistency DOUBLE       NULL,
  noise_analysis      DOUBLE       NULL,
  color_distribution  DOUBLE       NULL,
  edge_coherence      DOUBLE       NULL,
  metadata_score      DOUBLE       NULL,
  created_at          BIGINT       NOT NULL,
  INDEX idx_analyses_owner_created (owner_id, created_at),
  INDEX idx_analyses_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

// Migrate creates the analyses table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return eris.Wrap(err, "mysql: migrate")
}

func NewAnalysisRepository(db *sql.DB) *sqlrepo.AnalysisRepository {
	return sqlrepo.NewAnalysisRepository(db, sqlrepo.MySQL)
}
