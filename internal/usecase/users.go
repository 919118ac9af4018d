package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/auth"
	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/repository"
)

// UserRepository defines the account operations needed by UserUseCase.
type UserRepository interface {
	CreateUser(ctx context.Context, user *repository.User) error
	FindUserByEmail(ctx context.Context, email string) (*repository.User, error)
}

// UserUseCase handles registration and login.
type UserUseCase struct {
	repo   UserRepository
	logger *zap.Logger
	now    func() time.Time
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// NewUserUseCase constructs a new use case instance.
func NewUserUseCase(repo UserRepository, logger *zap.Logger) *UserUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserUseCase{repo: repo, logger: logger.Named("user_usecase"), now: time.Now}
}

// Register validates the form and creates the account.
func (uc *UserUseCase) Register(ctx context.Context, in RegisterInput) (*repository.User, error) {
	requestID := requestIDFrom(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.register", requestID)

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return nil, invalid("All fields are required")
	}
	if in.Password != in.ConfirmPassword {
		return nil, invalid("Passwords do not match")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, invalid("Password must be at least 6 characters long")
	}

	if _, err := uc.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		wrapped := logging.NewOperationError("usecase.find_user", requestID, err)
		opLogger.Error("failed to check existing account", zap.Error(wrapped))
		return nil, wrapped
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, logging.NewOperationError("usecase.hash_password", requestID, err)
	}

	user := &repository.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    uc.now(),
	}
	if err := uc.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		wrapped := logging.NewOperationError("usecase.create_user", requestID, err)
		opLogger.Error("failed to create account", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login checks the credentials and returns the account.
func (uc *UserUseCase) Login(ctx context.Context, email, password string) (*repository.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, invalid("Email and password are required")
	}

	user, err := uc.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		wrapped := logging.NewOperationError("usecase.login", requestIDFrom(ctx), err)
		uc.logger.Error("failed to load account", zap.Error(wrapped))
		return nil, wrapped
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
