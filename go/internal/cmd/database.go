package main

import (
	"database/sql"
	"fmt"

	"github.com/mcdev12/dynasty-projections/go/internal/dbconfig"
	"github.com/mcdev12/dynasty-projections/go/internal/store/postgres"
)

// setupDatabase opens Postgres and brings the schema up to date.
func setupDatabase(cfg dbconfig.Config) (*sql.DB, error) {
	database, err := cfg.Open()
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}
