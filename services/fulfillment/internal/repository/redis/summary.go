package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

const summaryKeyPrefix = "fulfillment:summary:"

// SummaryCache implements repository.SummaryCache using Redis.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache creates a Redis-backed summary cache. A zero ttl keeps
// entries until they are overwritten or deleted.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached summary of a variant or ErrNotFound on a miss.
func (c *SummaryCache) Get(ctx context.Context, variantID string) (*domain.StockSummary, error) {
	data, err := c.client.Get(ctx, summaryKeyPrefix+variantID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("stock summary", variantID)
		}
		return nil, fmt.Errorf("redis get summary: %w", err)
	}

	var s domain.StockSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, nil
}

// Set stores a summary with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, s *domain.StockSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := c.client.Set(ctx, summaryKeyPrefix+s.VariantID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set summary: %w", err)
	}
	return nil
}

// Delete evicts the summary of a variant.
func (c *SummaryCache) Delete(ctx context.Context, variantID string) error {
	if err := c.client.Del(ctx, summaryKeyPrefix+variantID).Err(); err != nil {
		return fmt.Errorf("redis del summary: %w", err)
	}
	return nil
}
