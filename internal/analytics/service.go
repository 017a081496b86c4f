// Package analytics serves cached per-restaurant sales summaries built from
// placed orders.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DaySales aggregates one day of non-cancelled orders.
type DaySales struct {
	Day          string          `json:"day"`
	Orders       int             `json:"orders"`
	CouponOrders int             `json:"couponOrders"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discounts    decimal.Decimal `json:"discounts"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
}

// ItemSales aggregates sold quantity and revenue for a menu item.
type ItemSales struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// Range is a half-open [From, To) window.
type Range struct {
	From time.Time
	To   time.Time
}

// Store runs the aggregate queries.
type Store interface {
	DailySales(ctx context.Context, restaurantID string, r Range) ([]DaySales, error)
	TopItems(ctx context.Context, restaurantID string, r Range, limit int) ([]ItemSales, error)
}

// Service caches Store results in Redis for TTL.
type Service struct {
	Store        Store
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Sales returns daily totals for restaurantID within r.
func (s *Service) Sales(ctx context.Context, restaurantID string, r Range) ([]DaySales, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("analytics service not configured")
	}
	key := cacheKey("an", "sales", restaurantID, r.From.Unix(), r.To.Unix())
	var rows []DaySales
	if s.load(ctx, key, &rows) {
		return rows, nil
	}
	rows, err := s.Store.DailySales(ctx, restaurantID, r)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// TopItems returns the best selling menu items for restaurantID within r.
func (s *Service) TopItems(ctx context.Context, restaurantID string, r Range, limit int) ([]ItemSales, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("analytics service not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	key := cacheKey("an", "top", restaurantID, r.From.Unix(), r.To.Unix(), limit)
	var rows []ItemSales
	if s.load(ctx, key, &rows) {
		return rows, nil
	}
	rows, err := s.Store.TopItems(ctx, restaurantID, r, limit)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
