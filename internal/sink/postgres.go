package sink

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const insertTranscript = `
INSERT INTO transcripts (session_id, seq, text, ok, error, offset_seconds, duration, processing_time, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// PostgresArchive stores every transcript in the transcripts table
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive connects to dsn and applies pending migrations
func NewPostgresArchive(ctx context.Context, dsn string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresArchive{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Name returns "postgres"
func (a *PostgresArchive) Name() string {
	return "postgres"
}

// Publish inserts one row for t
func (a *PostgresArchive) Publish(ctx context.Context, t Transcript) error {
	_, err := a.pool.Exec(ctx, insertTranscript,
		t.SessionID,
		int64(t.Seq),
		t.Text,
		t.OK,
		t.Error,
		t.Offset,
		t.Duration,
		t.ProcessingTime,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

// Check pings the database
func (a *PostgresArchive) Check(ctx context.Context) (bool, error) {
	if err := a.pool.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the pool
func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}
