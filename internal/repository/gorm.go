package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mehtapradnyatama/appsampah/internal/logging"
)

// PostgresStore persists records in a self-hosted Postgres through gorm.
type PostgresStore struct {
	db    *gorm.DB
	retry retrier
}

// OpenPostgres connects, configures the pool and pings the database.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return NewPostgresStore(db, logger), nil
}

// NewPostgresStore wraps an existing gorm handle.
func NewPostgresStore(db *gorm.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, retry: newRetrier(logger.Named("postgres_store"))}
}

// AutoMigrate ensures the schema is available.
func (s *PostgresStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&User{}, &Classification{})
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	return s.retry.executeInsert(ctx, "postgres.create_user", logging.RequestIDFromContext(ctx), func() error {
		return translateGormError(s.db.WithContext(ctx).Create(user).Error)
	})
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.retry.executeWithRetry(ctx, "postgres.find_user", logging.RequestIDFromContext(ctx), func() error {
		return translateGormError(s.db.WithContext(ctx).First(&user, "email = ?", email).Error)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) SaveClassification(ctx context.Context, record *Classification) error {
	return s.retry.executeInsert(ctx, "postgres.save_classification", logging.RequestIDFromContext(ctx), func() error {
		return translateGormError(s.db.WithContext(ctx).Create(record).Error)
	})
}

func (s *PostgresStore) ListClassifications(ctx context.Context, userID string) ([]*Classification, error) {
	var records []*Classification
	err := s.retry.executeWithRetry(ctx, "postgres.list_classifications", logging.RequestIDFromContext(ctx), func() error {
		records = records[:0]
		return s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translateGormError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
