// Package rules loads restaurant billing rule sets from Postgres, Redis and
// YAML rule packs.
package rules

import (
	"context"
	"errors"

	"github.com/noah-isme/resto-billing/internal/billing"
)

var (
	// ErrNotFound is returned when a restaurant, rule or coupon does not exist.
	ErrNotFound = errors.New("rules: not found")
	// ErrConflict is returned when a rule id belongs to another restaurant or a
	// coupon code is already taken.
	ErrConflict = errors.New("rules: conflict")
	// ErrUnknownFamily is returned for a rule family other than pricing, tax,
	// discount or coupon.
	ErrUnknownFamily = errors.New("rules: unknown family")
)

// Source yields a consistent snapshot of a restaurant's active rules.
type Source interface {
	Snapshot(ctx context.Context, restaurantID string) (billing.RuleSet, error)
}

// CouponFinder looks up a single coupon by code regardless of its active flag.
type CouponFinder interface {
	Coupon(ctx context.Context, restaurantID, code string) (billing.Coupon, error)
}

// Invalidator drops any cached snapshot for a restaurant.
type Invalidator interface {
	Invalidate(ctx context.Context, restaurantID string) error
}

// AdminStore manages stored rules, inactive ones included.
type AdminStore interface {
	All(ctx context.Context, restaurantID string) (billing.RuleSet, error)
	Save(ctx context.Context, restaurantID string, rs billing.RuleSet) error
	Deactivate(ctx context.Context, restaurantID, family, id string) error
}
