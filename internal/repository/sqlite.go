package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mehtapradnyatama/appsampah/internal/logging"
)

// sqliteTimeLayout is fixed width so created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a single-file backend for local development.
type SQLiteStore struct {
	db    *sql.DB
	retry retrier
}

// OpenSQLite opens (and creates) the database file at path. ":memory:" is
// accepted and keeps everything on one connection.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, retry: newRetrier(logger.Named("sqlite_store"))}, nil
}

func (s *SQLiteStore) AutoMigrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS classifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			image_path TEXT NOT NULL,
			predicted_class TEXT NOT NULL,
			confidence REAL NOT NULL,
			class_probabilities TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_classifications_user_created
			ON classifications (user_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	return s.retry.executeInsert(ctx, "sqlite.create_user", logging.RequestIDFromContext(ctx), func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
			user.ID, user.Username, user.Email, user.PasswordHash, formatSQLiteTime(user.CreatedAt))
		return translateSQLiteError(err)
	})
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var (
		user      User
		createdAt string
	)
	err := s.retry.executeWithRetry(ctx, "sqlite.find_user", logging.RequestIDFromContext(ctx), func() error {
		row := s.db.QueryRowContext(ctx,
			"SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?", email)
		return translateSQLiteError(row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &createdAt))
	})
	if err != nil {
		return nil, err
	}
	if user.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteStore) SaveClassification(ctx context.Context, record *Classification) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return s.retry.executeInsert(ctx, "sqlite.save_classification", logging.RequestIDFromContext(ctx), func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO classifications
				(id, user_id, image_path, predicted_class, confidence, class_probabilities, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.UserID, record.ImagePath, record.PredictedClass,
			record.Confidence, record.ClassProbabilities, formatSQLiteTime(record.CreatedAt))
		return translateSQLiteError(err)
	})
}

func (s *SQLiteStore) ListClassifications(ctx context.Context, userID string) ([]*Classification, error) {
	var records []*Classification
	err := s.retry.executeWithRetry(ctx, "sqlite.list_classifications", logging.RequestIDFromContext(ctx), func() error {
		var err error
		records, err = s.queryClassifications(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLiteStore) queryClassifications(ctx context.Context, userID string) ([]*Classification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, image_path, predicted_class, confidence, class_probabilities, created_at
		FROM classifications WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []*Classification{}
	for rows.Next() {
		var (
			rec       Classification
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ImagePath, &rec.PredictedClass,
			&rec.Confidence, &rec.ClassProbabilities, &createdAt); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", value, err)
	}
	return t.Local(), nil
}

func translateSQLiteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
