package stocksummary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Service builds summaries with a Redis read-through cache. Concurrent cache
// misses for the same tenant are collapsed through singleflight so only one
// projection query hits the database.
type Service struct {
	repo   Repository
	cache  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewService builds Service. cache may be nil to disable caching.
func NewService(repo Repository, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(companyID uuid.UUID) string {
	return fmt.Sprintf("stocksummary:%s", companyID)
}

// GetSummary returns the tenant's summary, serving from cache when fresh.
func (s *Service) GetSummary(ctx context.Context, companyID uuid.UUID) (Summary, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(companyID)).Bytes()
		if err == nil {
			var summary Summary
			if err := json.Unmarshal(raw, &summary); err == nil {
				return summary, nil
			}
			// Unreadable payload, fall through and rebuild.
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("stock summary cache read", slog.Any("error", err))
		}
	}

	result, err, _ := s.group.Do(companyID.String(), func() (interface{}, error) {
		summary, err := s.build(ctx, companyID)
		if err != nil {
			return Summary{}, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(summary); err == nil {
				if err := s.cache.Set(ctx, cacheKey(companyID), raw, s.ttl).Err(); err != nil {
					s.logger.Warn("stock summary cache write", slog.Any("error", err))
				}
			}
		}
		return summary, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return result.(Summary), nil
}

// InvalidateSummary drops the tenant's cached summary. Called after every
// approval so the dashboard never shows pre-approval quantities longer than
// one request.
func (s *Service) InvalidateSummary(ctx context.Context, companyID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKey(companyID)).Err()
}

func (s *Service) build(ctx context.Context, companyID uuid.UUID) (Summary, error) {
	products, err := s.repo.ActiveProducts(ctx, companyID)
	if err != nil {
		return Summary{}, err
	}
	counts, err := s.repo.EntryCounts(ctx, companyID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{GeneratedAt: time.Now().UTC()}
	summary.Stats.TotalProducts = len(products)
	summary.Stats.PendingEntries = counts.Pending
	summary.Stats.InwardEntries = counts.Inward
	summary.Stats.OutwardEntries = counts.Outward
	for i := range products {
		p := &products[i]
		p.StockValue = float64(p.StockQuantity) * p.Price
		p.Status = Classify(p.StockQuantity, p.MinStockLevel, p.ReorderLevel)
		summary.Stats.TotalStockValue += p.StockValue
		switch p.Status {
		case StatusCritical:
			summary.Stats.Critical++
		case StatusLow:
			summary.Stats.Low++
		default:
			summary.Stats.Adequate++
		}
	}
	if products == nil {
		products = []ProductStock{}
	}
	summary.Products = products
	return summary, nil
}
