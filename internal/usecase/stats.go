package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/repository"
)

// Stats summarises a user's classifications.
type Stats struct {
	TotalClassifications  int            `json:"total_classifications"`
	ClassDistribution     map[string]int `json:"class_distribution"`
	RecentClassifications int            `json:"recent_classifications"`
}

func statsCacheKey(userID string) string {
	return fmt.Sprintf("stats:%s", userID)
}

// Stats returns the user's statistics, from cache when possible. Recent
// classifications are those created on the current local date.
func (uc *ClassificationUseCase) Stats(ctx context.Context, userID string) (*Stats, error) {
	requestID := requestIDFrom(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.stats", requestID)
	cacheKey := statsCacheKey(userID)

	if cached, err := uc.redis.withRedisGet(ctx, requestID, "cache.get.stats", cacheKey); err == nil {
		var stats Stats
		if err := json.Unmarshal([]byte(cached), &stats); err != nil {
			opLogger.Warn("failed to decode cached stats", zap.Error(err))
		} else {
			return &stats, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	records, err := uc.repo.ListClassifications(ctx, userID)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.stats", requestID, err)
		opLogger.Error("failed to load classifications", zap.Error(wrapped))
		return nil, wrapped
	}

	stats := summarise(records, uc.now())

	if serialized, err := json.Marshal(stats); err == nil {
		if err := uc.redis.withRedisRetry(ctx, requestID, "cache.set.stats", func() error {
			return uc.redis.cache.Set(ctx, cacheKey, string(serialized), uc.statsTTL)
		}); err != nil {
			opLogger.Warn("failed to cache stats", zap.Error(err))
		}
	}

	return stats, nil
}

func summarise(records []*repository.Classification, now time.Time) *Stats {
	stats := &Stats{
		TotalClassifications: len(records),
		ClassDistribution:    countByClass(records),
	}
	y, m, d := now.Date()
	for _, rec := range records {
		ry, rm, rd := rec.CreatedAt.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			stats.RecentClassifications++
		}
	}
	return stats
}
