package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// User is a registered account.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Username     string    `gorm:"column:username;size:128" json:"username"`
	Email        string    `gorm:"column:email;uniqueIndex;size:255" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:255" json:"password_hash"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// Classification is one stored prediction for an uploaded image.
type Classification struct {
	ID             string  `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID         string  `gorm:"column:user_id;index;size:36" json:"user_id"`
	ImagePath      string  `gorm:"column:image_path;size:512" json:"image_path"`
	PredictedClass string  `gorm:"column:predicted_class;size:64" json:"predicted_class"`
	Confidence     float64 `gorm:"column:confidence" json:"confidence"`
	// ClassProbabilities holds the per-label percentages as a JSON object.
	ClassProbabilities string    `gorm:"column:class_probabilities;type:text" json:"class_probabilities"`
	CreatedAt          time.Time `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides the default table name.
func (Classification) TableName() string {
	return "classifications"
}

// Probabilities decodes ClassProbabilities.
func (c *Classification) Probabilities() (map[string]float64, error) {
	if c.ClassProbabilities == "" {
		return map[string]float64{}, nil
	}
	var probs map[string]float64
	if err := json.Unmarshal([]byte(c.ClassProbabilities), &probs); err != nil {
		return nil, fmt.Errorf("decode class probabilities of %s: %w", c.ID, err)
	}
	return probs, nil
}

// EncodeProbabilities serialises a probability map for storage.
func EncodeProbabilities(probs map[string]float64) (string, error) {
	data, err := json.Marshal(probs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Store is implemented by every persistence backend.
type Store interface {
	AutoMigrate(ctx context.Context) error
	CreateUser(ctx context.Context, user *User) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	SaveClassification(ctx context.Context, record *Classification) error
	// ListClassifications returns the user's records, newest first.
	ListClassifications(ctx context.Context, userID string) ([]*Classification, error)
	Close() error
}
