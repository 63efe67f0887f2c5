package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL-backed implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
	opt  options
}

// NewPostgresStore connects to dsn, verifies the connection and runs migrations.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "scanhook"

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, opt: buildOptions(opts)}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			file_id        TEXT PRIMARY KEY,
			callback_url   TEXT NOT NULL DEFAULT '',
			extracted_text TEXT,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) error {
	now := s.opt.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (file_id, callback_url, extracted_text, created_at, updated_at)
		VALUES ($1, $2, NULL, $3, $3)
	`, r.FileID, r.CallbackURL, now)
	if err != nil {
		return fmt.Errorf("create job %s: %w", r.FileID, err)
	}

	after := &Record{FileID: r.FileID, CallbackURL: r.CallbackURL, CreatedAt: now, UpdatedAt: now}
	publish(ctx, s.opt.publisher, Change{After: after})
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, fileID string) (*Record, error) {
	return getPgRecord(ctx, s.pool, fileID, false)
}

func (s *PostgresStore) SetExtractedText(ctx context.Context, fileID, text string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert %s: %w", fileID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	before, err := getPgRecord(ctx, tx, fileID, true)
	if err != nil {
		return err
	}

	var after Record
	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (file_id, callback_url, extracted_text, created_at, updated_at)
		VALUES ($1, '', $2, $3, $3)
		ON CONFLICT (file_id) DO UPDATE SET
			extracted_text = EXCLUDED.extracted_text,
			updated_at     = EXCLUDED.updated_at
		RETURNING file_id, callback_url, extracted_text, created_at, updated_at
	`, fileID, text, s.opt.now()).Scan(
		&after.FileID, &after.CallbackURL, &after.ExtractedText, &after.CreatedAt, &after.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert extracted text %s: %w", fileID, err)
	}
	after.CreatedAt = after.CreatedAt.UTC()
	after.UpdatedAt = after.UpdatedAt.UTC()
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert %s: %w", fileID, err)
	}

	publish(ctx, s.opt.publisher, Change{Before: before, After: &after})
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_id FROM jobs WHERE extracted_text IS NULL ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect pending jobs: %w", err)
	}
	return ids, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPgRecord(ctx context.Context, q pgQuerier, fileID string, forUpdate bool) (*Record, error) {
	query := `
		SELECT file_id, callback_url, extracted_text, created_at, updated_at
		FROM jobs WHERE file_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	r := &Record{}
	err := q.QueryRow(ctx, query, fileID).Scan(
		&r.FileID, &r.CallbackURL, &r.ExtractedText, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", fileID, err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}
