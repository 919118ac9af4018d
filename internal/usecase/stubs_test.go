package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mehtapradnyatama/appsampah/internal/classifier"
	"github.com/mehtapradnyatama/appsampah/internal/repository"
)

type stubRepository struct {
	mu        sync.Mutex
	users     map[string]*repository.User
	records   []*repository.Classification
	saveErr   error
	listErr   error
	findErr   error
	createErr error
	listCalls int
}

func newStubRepository() *stubRepository {
	return &stubRepository{users: map[string]*repository.User{}}
}

func (s *stubRepository) CreateUser(ctx context.Context, user *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.users[user.Email] = user
	return nil
}

func (s *stubRepository) FindUserByEmail(ctx context.Context, email string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if user, ok := s.users[email]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepository) SaveClassification(ctx context.Context, record *repository.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append([]*repository.Classification{record}, s.records...)
	return nil
}

func (s *stubRepository) ListClassifications(ctx context.Context, userID string) ([]*repository.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*repository.Classification
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type stubCache struct {
	mu         sync.Mutex
	values     map[string]string
	setErrs    []error
	getErrs    []error
	deleteErrs []error
	setKeys    []string
	getKeys    []string
	deleted    []string
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}}
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setKeys = append(s.setKeys, key)
	if err := popErr(&s.setErrs); err != nil {
		return err
	}
	s.values[key] = value.(string)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getKeys = append(s.getKeys, key)
	if err := popErr(&s.getErrs); err != nil {
		return "", err
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *stubCache) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	if err := popErr(&s.deleteErrs); err != nil {
		return err
	}
	delete(s.values, key)
	return nil
}

type stubClassifier struct {
	prediction *classifier.Prediction
	err        error
	available  bool
	paths      []string
}

func (s *stubClassifier) Classify(ctx context.Context, path string) (*classifier.Prediction, error) {
	s.paths = append(s.paths, path)
	if s.err != nil {
		return nil, s.err
	}
	return s.prediction, nil
}

func (s *stubClassifier) Available() bool { return s.available }

type stubUploads struct {
	saved   map[string][]byte
	saveErr error
}

func (s *stubUploads) Save(filename string, src io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	name := "20250101_120000_" + filepath.Base(filename)
	s.saved[name] = data
	return name, nil
}

func (s *stubUploads) Path(name string) string {
	return filepath.Join("/uploads", name)
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func samplePrediction() *classifier.Prediction {
	return &classifier.Prediction{
		PredictedClass:  "plastic",
		ConfidenceScore: 72.5,
		ClassProbabilities: map[string]float64{
			"cardboard": 5, "glass": 10, "metal": 7.5, "paper": 5, "plastic": 72.5,
		},
	}
}

func imageBody() io.Reader {
	return bytes.NewReader([]byte("fake image bytes"))
}

var errBoom = errors.New("boom")
