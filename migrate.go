package bmetemp

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3" // sqlite3:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 database/sql driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the database at dbPath up to the latest schema.
func Migrate(dbPath string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// OpenSqliteDataStore migrates and opens the database at dbPath.
func OpenSqliteDataStore(dbPath string) (*SqliteDataStore, func() error, error) {
	if err := Migrate(dbPath); err != nil {
		return nil, nil, err
	}

	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, nil, err
	}

	return NewSqliteDataStore(db), db.Close, nil
}
