package rules

import (
	"context"
	"errors"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/resilience"
)

// GuardedSource fails fast with resilience.ErrOpenCircuit while the backing
// store keeps erroring. Missing restaurants and coupons and malformed rule rows
// do not trip the breaker.
type GuardedSource struct {
	Source  Source
	Breaker *resilience.Breaker
}

func infraFailure(err error) bool {
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled) && !billing.IsConfigError(err)
}

// Snapshot implements Source.
func (g GuardedSource) Snapshot(ctx context.Context, restaurantID string) (billing.RuleSet, error) {
	var rs billing.RuleSet
	err := g.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		rs, err = g.Source.Snapshot(ctx, restaurantID)
		return err
	}, infraFailure)
	return rs, err
}

// Coupon implements CouponFinder when the wrapped source does.
func (g GuardedSource) Coupon(ctx context.Context, restaurantID, code string) (billing.Coupon, error) {
	finder, ok := g.Source.(CouponFinder)
	if !ok {
		return billing.Coupon{}, ErrNotFound
	}
	var c billing.Coupon
	err := g.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		c, err = finder.Coupon(ctx, restaurantID, code)
		return err
	}, infraFailure)
	return c, err
}
