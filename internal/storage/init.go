package storage

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5"
	_ "github.com/lib/pq"
)

const migrationPath = "migrations"

func runMigrations(db *sql.DB) error {
	const op = "storage.migrations"

	goose.SetDialect("postgres")

	if err := goose.Up(db, migrationPath); err != nil {
		if err == goose.ErrNoNextVersion {
			return nil
		}
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}
