package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/classifier"
	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/repository"
	"github.com/mehtapradnyatama/appsampah/internal/uploads"
)

// ImageClassifier is the inference adapter used by the classify flow.
type ImageClassifier interface {
	Classify(ctx context.Context, path string) (*classifier.Prediction, error)
	Available() bool
}

// UploadStore stores uploaded images on the shared filesystem.
type UploadStore interface {
	Save(filename string, src io.Reader) (string, error)
	Path(name string) string
}

// ClassificationRepository defines the persistence operations needed by the use case.
type ClassificationRepository interface {
	SaveClassification(ctx context.Context, record *repository.Classification) error
	ListClassifications(ctx context.Context, userID string) ([]*repository.Classification, error)
}

// ClassificationUseCase encapsulates the classify, history and stats flows.
type ClassificationUseCase struct {
	repo       ClassificationRepository
	classifier ImageClassifier
	uploads    UploadStore
	redis      redisRetrier
	statsTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// ClassificationResult is what the classify flow hands back to the caller.
type ClassificationResult struct {
	ID         string                 `json:"id"`
	ImagePath  string                 `json:"image_path"`
	Prediction *classifier.Prediction `json:"prediction"`
	// Saved is false when the record could not be persisted; the prediction
	// is still valid.
	Saved     bool      `json:"saved"`
	CreatedAt time.Time `json:"created_at"`
}

// History is the dashboard view of a user's classifications.
type History struct {
	Records     []*repository.Classification
	Total       int
	ClassCounts map[string]int
}

// NewClassificationUseCase constructs a new use case instance. A nil cache
// disables stats caching.
func NewClassificationUseCase(repo ClassificationRepository, clf ImageClassifier, store UploadStore, cache Cache, statsTTL time.Duration, logger *zap.Logger) *ClassificationUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("classification_usecase")
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}
	return &ClassificationUseCase{
		repo:       repo,
		classifier: clf,
		uploads:    store,
		redis:      newRedisRetrier(cache, logger),
		statsTTL:   statsTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// ModelLoaded reports whether classification requests can succeed.
func (uc *ClassificationUseCase) ModelLoaded() bool {
	return uc.classifier != nil && uc.classifier.Available()
}

// Classify stores the upload, runs the classifier and records the outcome.
func (uc *ClassificationUseCase) Classify(ctx context.Context, userID, filename string, src io.Reader) (*ClassificationResult, error) {
	requestID := requestIDFrom(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", requestID)

	if strings.TrimSpace(filename) == "" {
		return nil, invalid("No file selected")
	}
	if !uploads.Allowed(filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}

	stored, err := uc.uploads.Save(filename, src)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.save_upload", requestID, err)
		opLogger.Error("failed to store upload", zap.Error(wrapped))
		return nil, wrapped
	}

	prediction, err := uc.classifier.Classify(ctx, uc.uploads.Path(stored))
	if err != nil {
		opLogger.Error("classification failed",
			zap.String("image_path", stored),
			zap.NamedError("kind", classifier.KindOf(err)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	probabilities, err := repository.EncodeProbabilities(prediction.ClassProbabilities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	record := &repository.Classification{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ImagePath:          stored,
		PredictedClass:     prediction.PredictedClass,
		Confidence:         prediction.ConfidenceScore,
		ClassProbabilities: probabilities,
		CreatedAt:          uc.now(),
	}

	result := &ClassificationResult{
		ID:         record.ID,
		ImagePath:  stored,
		Prediction: prediction,
		CreatedAt:  record.CreatedAt,
	}

	if err := uc.repo.SaveClassification(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_classification", requestID, err)
		opLogger.Error("failed to persist classification", zap.Error(wrapped))
		return result, nil
	}
	result.Saved = true

	if err := uc.redis.withRedisRetry(ctx, requestID, "cache.delete.stats", func() error {
		return uc.redis.cache.Delete(ctx, statsCacheKey(userID))
	}); err != nil {
		opLogger.Warn("failed to invalidate stats cache", zap.Error(err))
	}

	opLogger.Info("image classified",
		zap.String("predicted_class", prediction.PredictedClass),
		zap.Float64("confidence", prediction.ConfidenceScore))
	return result, nil
}

// History loads the user's records newest first with per-class counts.
func (uc *ClassificationUseCase) History(ctx context.Context, userID string) (*History, error) {
	records, err := uc.repo.ListClassifications(ctx, userID)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.history", requestIDFrom(ctx), err)
		uc.logger.Error("failed to load history", zap.Error(wrapped))
		return nil, wrapped
	}

	return &History{
		Records:     records,
		Total:       len(records),
		ClassCounts: countByClass(records),
	}, nil
}

func countByClass(records []*repository.Classification) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.PredictedClass]++
	}
	return counts
}

func requestIDFrom(ctx context.Context) string {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
