package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/classifier"
	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/repository"
)

func newTestClassificationUseCase(repo *stubRepository, clf *stubClassifier, cache Cache) (*ClassificationUseCase, *stubUploads) {
	store := &stubUploads{}
	uc := NewClassificationUseCase(repo, clf, store, cache, time.Minute, zap.NewNop())
	uc.redis.initialBackoff = time.Millisecond
	uc.redis.maxBackoff = 2 * time.Millisecond
	return uc, store
}

func TestClassifyStoresAndRecords(t *testing.T) {
	repo := newStubRepository()
	clf := &stubClassifier{prediction: samplePrediction(), available: true}
	cache := newStubCache()
	uc, store := newTestClassificationUseCase(repo, clf, cache)

	result, err := uc.Classify(context.Background(), "user-1", "bottle.JPG", imageBody())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !result.Saved {
		t.Fatal("expected result to be saved")
	}
	if result.Prediction.PredictedClass != "plastic" {
		t.Fatalf("unexpected class %s", result.Prediction.PredictedClass)
	}
	if _, ok := store.saved[result.ImagePath]; !ok {
		t.Fatalf("upload %s not stored", result.ImagePath)
	}
	if len(clf.paths) != 1 || clf.paths[0] != "/uploads/"+result.ImagePath {
		t.Fatalf("classifier got unexpected paths %v", clf.paths)
	}

	if len(repo.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(repo.records))
	}
	rec := repo.records[0]
	if rec.UserID != "user-1" || rec.ImagePath != result.ImagePath || rec.Confidence != 72.5 {
		t.Fatalf("unexpected record %+v", rec)
	}
	var probs map[string]float64
	if err := json.Unmarshal([]byte(rec.ClassProbabilities), &probs); err != nil {
		t.Fatalf("probabilities are not JSON: %v", err)
	}
	if probs["plastic"] != 72.5 || len(probs) != 5 {
		t.Fatalf("unexpected probabilities %v", probs)
	}

	if len(cache.deleted) != 1 || cache.deleted[0] != "stats:user-1" {
		t.Fatalf("expected stats cache invalidation, got %v", cache.deleted)
	}
}

func TestClassifyRejectsUnsupportedExtension(t *testing.T) {
	repo := newStubRepository()
	clf := &stubClassifier{prediction: samplePrediction(), available: true}
	uc, store := newTestClassificationUseCase(repo, clf, newStubCache())

	_, err := uc.Classify(context.Background(), "user-1", "notes.txt", imageBody())
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
	if len(store.saved) != 0 || len(clf.paths) != 0 {
		t.Fatal("nothing should be stored or classified")
	}
}

func TestClassifyRequiresFilename(t *testing.T) {
	uc, _ := newTestClassificationUseCase(newStubRepository(), &stubClassifier{available: true}, nil)

	_, err := uc.Classify(context.Background(), "user-1", "  ", imageBody())
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Message != "No file selected" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClassifyHidesClassifierFailure(t *testing.T) {
	kinds := []error{classifier.ErrModelUnavailable, classifier.ErrDecode, classifier.ErrInference}
	for _, kind := range kinds {
		t.Run(kind.Error(), func(t *testing.T) {
			repo := newStubRepository()
			clf := &stubClassifier{err: &classifier.Error{Kind: kind}}
			uc, _ := newTestClassificationUseCase(repo, clf, newStubCache())

			result, err := uc.Classify(context.Background(), "user-1", "can.png", imageBody())
			if result != nil {
				t.Fatal("expected no result on failure")
			}
			if !errors.Is(err, ErrProcessingFailed) {
				t.Fatalf("expected ErrProcessingFailed, got %v", err)
			}
			if !errors.Is(err, kind) {
				t.Fatalf("expected cause %v to be kept, got %v", kind, err)
			}
			if len(repo.records) != 0 {
				t.Fatal("failed classification must not be recorded")
			}
		})
	}
}

func TestClassifyKeepsResultWhenPersistenceFails(t *testing.T) {
	repo := newStubRepository()
	repo.saveErr = errBoom
	cache := newStubCache()
	uc, _ := newTestClassificationUseCase(repo, &stubClassifier{prediction: samplePrediction(), available: true}, cache)

	result, err := uc.Classify(context.Background(), "user-1", "box.jpeg", imageBody())
	if err != nil {
		t.Fatalf("expected result despite storage failure, got %v", err)
	}
	if result.Saved {
		t.Fatal("expected Saved=false")
	}
	if result.Prediction == nil || result.Prediction.PredictedClass != "plastic" {
		t.Fatalf("unexpected prediction %+v", result.Prediction)
	}
	if len(cache.deleted) != 0 {
		t.Fatal("cache should not be invalidated when nothing was saved")
	}
}

func TestClassifyReturnsOperationErrorOnUploadFailure(t *testing.T) {
	uc, store := newTestClassificationUseCase(newStubRepository(), &stubClassifier{available: true}, nil)
	store.saveErr = errBoom

	ctx := logging.ContextWithRequestID(context.Background(), "req-42")
	_, err := uc.Classify(ctx, "user-1", "box.png", imageBody())

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "usecase.save_upload" || opErr.RequestID != "req-42" {
		t.Fatalf("unexpected operation error %+v", opErr)
	}
}

func TestClassifyToleratesCacheInvalidationFailure(t *testing.T) {
	cache := newStubCache()
	cache.deleteErrs = []error{transientRedisError{}, transientRedisError{}, transientRedisError{}}
	uc, _ := newTestClassificationUseCase(newStubRepository(), &stubClassifier{prediction: samplePrediction(), available: true}, cache)

	result, err := uc.Classify(context.Background(), "user-1", "box.png", imageBody())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !result.Saved {
		t.Fatal("expected record to be saved")
	}
	if len(cache.deleted) != 3 {
		t.Fatalf("expected 3 delete attempts, got %d", len(cache.deleted))
	}
}

func TestHistoryCountsByClass(t *testing.T) {
	repo := newStubRepository()
	now := time.Now()
	repo.records = []*repository.Classification{
		{ID: "3", UserID: "u", PredictedClass: "glass", CreatedAt: now},
		{ID: "2", UserID: "u", PredictedClass: "metal", CreatedAt: now.Add(-time.Hour)},
		{ID: "1", UserID: "u", PredictedClass: "glass", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "x", UserID: "other", PredictedClass: "paper", CreatedAt: now},
	}
	uc, _ := newTestClassificationUseCase(repo, &stubClassifier{}, nil)

	history, err := uc.History(context.Background(), "u")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.Total != 3 {
		t.Fatalf("expected 3 records, got %d", history.Total)
	}
	if history.Records[0].ID != "3" {
		t.Fatalf("expected newest first, got %s", history.Records[0].ID)
	}
	if history.ClassCounts["glass"] != 2 || history.ClassCounts["metal"] != 1 || len(history.ClassCounts) != 2 {
		t.Fatalf("unexpected counts %v", history.ClassCounts)
	}
}

func TestHistoryWrapsRepositoryError(t *testing.T) {
	repo := newStubRepository()
	repo.listErr = errBoom
	uc, _ := newTestClassificationUseCase(repo, &stubClassifier{}, nil)

	if _, err := uc.History(context.Background(), "u"); !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestModelLoaded(t *testing.T) {
	uc, _ := newTestClassificationUseCase(newStubRepository(), &stubClassifier{available: true}, nil)
	if !uc.ModelLoaded() {
		t.Fatal("expected model loaded")
	}
	uc, _ = newTestClassificationUseCase(newStubRepository(), &stubClassifier{available: false}, nil)
	if uc.ModelLoaded() {
		t.Fatal("expected model unavailable")
	}
}
