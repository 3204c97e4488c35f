// Package postgres implements store.Store on database/sql with the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/dynasty-projections/go/internal/sqlutil"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store runs queries against a pool and groups writes with InTx.
type Store struct {
	*Queries
	db *sql.DB
}

var (
	_ store.Store        = (*Store)(nil)
	_ store.OutboxReader = (*Store)(nil)
)

// New wraps an open database. Call Migrate first on a fresh database.
func New(db *sql.DB) *Store {
	return &Store{Queries: NewQueries(db), db: db}
}

// InTx runs fn in one database transaction.
func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return sqlutil.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		return fn(NewQueries(tx))
	})
}

// Migrate applies the embedded goose migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	log.Info().Msg("migrations completed successfully")
	return nil
}

// Postgres error codes mapped onto store errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapErr translates driver errors into store.ErrNotFound / store.ErrAlreadyExists.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", what, store.ErrAlreadyExists)
		case foreignKeyViolation:
			return fmt.Errorf("%s references a missing row: %w", what, store.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
