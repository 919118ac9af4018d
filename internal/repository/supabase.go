package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/supabase"
)

const (
	usersTable           = "users"
	classificationsTable = "classifications"
)

// SupabaseStore keeps users and classifications in hosted Supabase tables.
// The tables are created from the Supabase dashboard.
type SupabaseStore struct {
	client *supabase.Client
	retry  retrier
}

// NewSupabaseStore wraps a PostgREST client.
func NewSupabaseStore(client *supabase.Client, logger *zap.Logger) *SupabaseStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupabaseStore{client: client, retry: newRetrier(logger.Named("supabase_store"))}
}

type userRow struct {
	ID           string              `json:"id"`
	Username     string              `json:"username"`
	Email        string              `json:"email"`
	PasswordHash string              `json:"password_hash"`
	CreatedAt    *supabase.Timestamp `json:"created_at,omitempty"`
}

type classificationRow struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"user_id"`
	ImagePath          string              `json:"image_path"`
	PredictedClass     string              `json:"predicted_class"`
	Confidence         float64             `json:"confidence"`
	ClassProbabilities string              `json:"class_probabilities"`
	CreatedAt          *supabase.Timestamp `json:"created_at,omitempty"`
}

func timestampOf(t time.Time) *supabase.Timestamp {
	if t.IsZero() {
		return nil
	}
	return &supabase.Timestamp{Time: t}
}

func (r userRow) user() *User {
	u := &User{ID: r.ID, Username: r.Username, Email: r.Email, PasswordHash: r.PasswordHash}
	if r.CreatedAt != nil {
		u.CreatedAt = r.CreatedAt.Time
	}
	return u
}

func (r classificationRow) record() *Classification {
	c := &Classification{
		ID:                 r.ID,
		UserID:             r.UserID,
		ImagePath:          r.ImagePath,
		PredictedClass:     r.PredictedClass,
		Confidence:         r.Confidence,
		ClassProbabilities: r.ClassProbabilities,
	}
	if r.CreatedAt != nil {
		c.CreatedAt = r.CreatedAt.Time
	}
	return c
}

// AutoMigrate is a no-op.
func (s *SupabaseStore) AutoMigrate(context.Context) error {
	return nil
}

func (s *SupabaseStore) CreateUser(ctx context.Context, user *User) error {
	row := userRow{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    timestampOf(user.CreatedAt),
	}
	var stored []userRow
	err := s.retry.executeInsert(ctx, "supabase.create_user", logging.RequestIDFromContext(ctx), func() error {
		return translateAPIError(s.client.Insert(ctx, usersTable, row, &stored))
	})
	if err != nil {
		return err
	}
	if len(stored) > 0 && stored[0].CreatedAt != nil {
		user.CreatedAt = stored[0].CreatedAt.Time
	}
	return nil
}

func (s *SupabaseStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	query := url.Values{"email": {supabase.Eq(email)}, "limit": {"1"}}
	var rows []userRow
	err := s.retry.executeWithRetry(ctx, "supabase.find_user", logging.RequestIDFromContext(ctx), func() error {
		return s.client.Select(ctx, usersTable, query, &rows)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].user(), nil
}

func (s *SupabaseStore) SaveClassification(ctx context.Context, record *Classification) error {
	row := classificationRow{
		ID:                 record.ID,
		UserID:             record.UserID,
		ImagePath:          record.ImagePath,
		PredictedClass:     record.PredictedClass,
		Confidence:         record.Confidence,
		ClassProbabilities: record.ClassProbabilities,
		CreatedAt:          timestampOf(record.CreatedAt),
	}
	var stored []classificationRow
	err := s.retry.executeInsert(ctx, "supabase.save_classification", logging.RequestIDFromContext(ctx), func() error {
		return translateAPIError(s.client.Insert(ctx, classificationsTable, row, &stored))
	})
	if err != nil {
		return err
	}
	if len(stored) > 0 && stored[0].CreatedAt != nil {
		record.CreatedAt = stored[0].CreatedAt.Time
	}
	return nil
}

func (s *SupabaseStore) ListClassifications(ctx context.Context, userID string) ([]*Classification, error) {
	query := url.Values{
		"user_id": {supabase.Eq(userID)},
		"order":   {"created_at.desc"},
	}
	var rows []classificationRow
	err := s.retry.executeWithRetry(ctx, "supabase.list_classifications", logging.RequestIDFromContext(ctx), func() error {
		return s.client.Select(ctx, classificationsTable, query, &rows)
	})
	if err != nil {
		return nil, err
	}
	records := make([]*Classification, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (s *SupabaseStore) Close() error {
	return nil
}

// translateAPIError maps a PostgREST unique violation onto ErrDuplicate.
func translateAPIError(err error) error {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrDuplicate, apiErr.Body)
	}
	return err
}
