package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Option configures a store.
type Option func(*options)

type options struct {
	publisher Publisher
	now       func() time.Time
}

// WithPublisher sets where committed changes are sent.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		publisher: nopPublisher{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db  *sql.DB
	opt options
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: writes serialize here, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, opt: buildOptions(opts)}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			file_id        TEXT PRIMARY KEY,
			callback_url   TEXT NOT NULL DEFAULT '',
			extracted_text TEXT,
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, r *Record) error {
	now := s.opt.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (file_id, callback_url, extracted_text, created_at, updated_at)
		VALUES (?, ?, NULL, ?, ?)
	`, r.FileID, r.CallbackURL, now, now)
	if err != nil {
		return fmt.Errorf("create job %s: %w", r.FileID, err)
	}

	after := &Record{FileID: r.FileID, CallbackURL: r.CallbackURL, CreatedAt: now, UpdatedAt: now}
	publish(ctx, s.opt.publisher, Change{After: after})
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, fileID string) (*Record, error) {
	return getRecord(ctx, s.db, fileID)
}

func (s *SQLiteStore) SetExtractedText(ctx context.Context, fileID, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert %s: %w", fileID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	// The before image only feeds the change event; the write below does
	// not depend on it.
	before, err := getRecord(ctx, tx, fileID)
	if err != nil {
		return err
	}

	now := s.opt.now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (file_id, callback_url, extracted_text, created_at, updated_at)
		VALUES (?, '', ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			extracted_text = excluded.extracted_text,
			updated_at     = excluded.updated_at
	`, fileID, text, now, now); err != nil {
		return fmt.Errorf("upsert extracted text %s: %w", fileID, err)
	}

	after, err := getRecord(ctx, tx, fileID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert %s: %w", fileID, err)
	}

	publish(ctx, s.opt.publisher, Change{Before: before, After: after})
	return nil
}

func (s *SQLiteStore) ListPending(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id FROM jobs WHERE extracted_text IS NULL ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", err)
	}
	return ids, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q rowQuerier, fileID string) (*Record, error) {
	row := q.QueryRowContext(ctx, `
		SELECT file_id, callback_url, extracted_text, created_at, updated_at
		FROM jobs WHERE file_id = ?
	`, fileID)

	r := &Record{}
	var text sql.NullString
	err := row.Scan(&r.FileID, &r.CallbackURL, &text, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", fileID, err)
	}
	if text.Valid {
		t := text.String
		r.ExtractedText = &t
	}
	return r, nil
}
