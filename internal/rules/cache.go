package rules

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/obs"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// CachedSource serves snapshots from Redis and falls back to the wrapped Source.
// Cache failures degrade to a direct read.
type CachedSource struct {
	Source Source
	Cache  *Cache
	Logger zerolog.Logger
}

func snapshotKey(restaurantID string) string {
	return "rules:snapshot:" + restaurantID
}

// Snapshot implements Source.
func (s CachedSource) Snapshot(ctx context.Context, restaurantID string) (billing.RuleSet, error) {
	key := snapshotKey(restaurantID)
	var rs billing.RuleSet
	hit, err := s.Cache.GetJSON(ctx, key, &rs)
	if err != nil {
		s.Logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("rules cache read failed")
	}
	if hit {
		obs.ObserveRulesCache("hit")
		return rs, nil
	}
	obs.ObserveRulesCache("miss")

	rs, err = s.Source.Snapshot(ctx, restaurantID)
	if err != nil {
		return rs, err
	}
	if err := s.Cache.SetJSON(ctx, key, rs); err != nil {
		s.Logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("rules cache write failed")
	}
	return rs, nil
}

// Coupon passes through to the wrapped source when it can look up coupons.
// Coupon lookups are never cached because usage counts move with every order.
func (s CachedSource) Coupon(ctx context.Context, restaurantID, code string) (billing.Coupon, error) {
	finder, ok := s.Source.(CouponFinder)
	if !ok {
		return billing.Coupon{}, ErrNotFound
	}
	return finder.Coupon(ctx, restaurantID, code)
}

// Invalidate drops the cached snapshot for restaurantID.
func (s CachedSource) Invalidate(ctx context.Context, restaurantID string) error {
	return s.Cache.Delete(ctx, snapshotKey(restaurantID))
}
