package auth

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// DialectMigrationsFS returns the migration set for the given dialect
func DialectMigrationsFS(name dialect.Name) (fs.FS, error) {
	var dir string
	switch name {
	case dialect.SQLite:
		dir = "data/sql/migrations/sqlite"
	case dialect.PG:
		dir = "data/sql/migrations/postgres"
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
	return fs.Sub(migrationsFS, dir)
}

// Migrate applies every pending migration for the database dialect and
// returns the names of the migrations that ran
func Migrate(ctx context.Context, db *bun.DB) ([]string, error) {
	fsys, err := DialectMigrationsFS(db.Dialect().Name())
	if err != nil {
		return nil, err
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(fsys); err != nil {
		return nil, fmt.Errorf("discover migrations: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	applied := make([]string, 0, len(group.Migrations))
	for _, m := range group.Migrations {
		applied = append(applied, m.Name)
	}
	return applied, nil
}
