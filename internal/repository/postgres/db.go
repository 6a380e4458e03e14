package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so that every
// repository can run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner implements domain.TxRunner on a connection pool
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner creates a new TxRunner
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx executes fn within a database transaction.
// If fn returns an error the transaction is rolled back, otherwise committed.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos domain.TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// no-op once committed
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(txRepositories{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type txRepositories struct {
	db DBTX
}

func (t txRepositories) Jobs() domain.JobRepository {
	return &JobRepository{db: t.db}
}

func (t txRepositories) Ledger() domain.LedgerRepository {
	return &LedgerRepository{db: t.db}
}

// Migrate brings the schema up to the latest embedded goose migration and
// returns the resulting version. Applied versions are tracked in goose's
// version table, so each file runs once.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	if err := useMigrations(); err != nil {
		return 0, err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	log.Info().Int64("version", version).Msg("Schema migrated")
	return version, nil
}

// PendingMigrations lists the embedded migrations above current, in order
func PendingMigrations(current int64) (goose.Migrations, error) {
	if err := useMigrations(); err != nil {
		return nil, err
	}
	return goose.CollectMigrations(migrationsDir, current, goose.MaxVersion)
}

func useMigrations() error {
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(gooseLogger{})
	return goose.SetDialect("postgres")
}

// gooseLogger routes goose output through zerolog
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Info().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Str("component", "goose").Msgf(strings.TrimSpace(format), v...)
}

// isPgUniqueViolation checks if an error is a PostgreSQL unique constraint violation
func isPgUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// PostgreSQL unique violation error code is 23505
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
