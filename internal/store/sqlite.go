package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/ashureev/remodel-intake/internal/session"
	"github.com/ashureev/remodel-intake/internal/shared"
	_ "modernc.org/sqlite"
)

const busyRetries = 3

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc applies _pragma parameters to every pooled connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		chat_id INTEGER NOT NULL,
		answers_json TEXT NOT NULL,
		summary TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		delivered_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_submitted ON submissions(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_submissions_undelivered ON submissions(submitted_at) WHERE delivered_at IS NULL;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSubmission archives a finalized submission with its rendered summary.
func (s *SQLiteStore) SaveSubmission(ctx context.Context, sub *intake.Submission, summary string) error {
	answers, err := json.Marshal(sub.Record)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	query := `
	INSERT INTO submissions (id, reference, user_id, user_name, chat_id, answers_json, summary, submitted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	err = shared.RetryOnConflict(ctx, busyRetries, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			sub.ID, sub.Reference, sub.UserID, sub.UserName, sub.ChatID,
			string(answers), summary, sub.SubmittedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// MarkDelivered records when the administrator notification succeeded.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, busyRetries, func() error {
		result, execErr := s.db.ExecContext(ctx,
			`UPDATE submissions SET delivered_at = ? WHERE id = ?`, at.Unix(), id)
		if execErr != nil {
			return execErr
		}
		var raErr error
		rows, raErr = result.RowsAffected()
		return raErr
	})
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if rows == 0 {
		slog.Warn("MarkDelivered affected 0 rows", "submission_id", id)
		return ErrNotFound
	}
	return nil
}

const submissionColumns = `id, reference, user_id, user_name, chat_id, answers_json, summary, submitted_at, delivered_at`

// GetSubmission retrieves a submission by ID.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubmissions returns up to limit submissions, newest first.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY submitted_at DESC, rowid DESC LIMIT ?`, limit)
}

// ListUndelivered returns submissions whose notification never succeeded, oldest first.
func (s *SQLiteStore) ListUndelivered(ctx context.Context) ([]*Submission, error) {
	return s.query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE delivered_at IS NULL ORDER BY submitted_at ASC, rowid ASC`)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close submission rows", "error", closeErr)
		}
	}()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*Submission, error) {
	var sub Submission
	var answersJSON string
	var submittedAt int64
	var deliveredAt sql.NullInt64

	err := row.Scan(
		&sub.ID, &sub.Reference, &sub.UserID, &sub.UserName, &sub.ChatID,
		&answersJSON, &sub.Summary, &submittedAt, &deliveredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission row: %w", err)
	}

	sub.Answers = session.Record{}
	if err := json.Unmarshal([]byte(answersJSON), &sub.Answers); err != nil {
		return nil, fmt.Errorf("decode answers for %s: %w", sub.ID, err)
	}
	sub.SubmittedAt = time.Unix(submittedAt, 0)
	if deliveredAt.Valid {
		ts := time.Unix(deliveredAt.Int64, 0)
		sub.DeliveredAt = &ts
	}
	return &sub, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
