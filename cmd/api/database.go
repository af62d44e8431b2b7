package main

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bryanwahyu/imageproof/internal/config"
	mysqlp "github.com/bryanwahyu/imageproof/internal/infra/db/mysql"
	"github.com/bryanwahyu/imageproof/internal/infra/db/postgres"
	"github.com/bryanwahyu/imageproof/internal/infra/db/sqlite"
	"github.com/bryanwahyu/imageproof/internal/infra/db/sqlrepo"
)

// database bundles the handle, its repository and its schema migration.
type database struct {
	db      *sql.DB
	repo    *sqlrepo.AnalysisRepository
	migrate func(context.Context, *sql.DB) error
}

func openDatabase(ctx context.Context, c *config.Config) (*database, error) {
	switch c.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, c.MySQLDSN())
		if err != nil {
			return nil, err
		}
		return &database{db: db, repo: mysqlp.NewAnalysisRepository(db), migrate: mysqlp.Migrate}, nil
	case "postgres":
		db, err := postgres.Connect(ctx, c.PostgresDSN())
		if err != nil {
			return nil, err
		}
		return &database{db: db, repo: postgres.NewAnalysisRepository(db), migrate: postgres.Migrate}, nil
	case "sqlite":
		db, err := sqlite.Open(c.Database.Path)
		if err != nil {
			return nil, err
		}
		return &database{db: db, repo: sqlite.NewAnalysisRepository(db), migrate: sqlite.Migrate}, nil
	default:
		return nil, eris.Errorf("unknown database driver %q", c.Database.Driver)
	}
}

func (d *database) Migrate(ctx context.Context) error {
	if err := d.migrate(ctx, d.db); err != nil {
		return err
	}
	zap.L().Info("schema up to date")
	return nil
}

func (d *database) Close() error {
	return d.db.Close()
}
