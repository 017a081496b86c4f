// Package coupon answers whether a coupon code can currently be redeemed.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/obs"
	"github.com/noah-isme/resto-billing/internal/rules"
)

// ErrCouponNotFound is returned when the restaurant has no coupon with the code.
var ErrCouponNotFound = errors.New("coupon not found")

// Service validates coupons outside of a cart calculation.
type Service struct {
	Coupons rules.CouponFinder
	Now     func() time.Time
}

// Validate looks up code for restaurantID and checks its activity window and
// usage quota. Cart dependent conditions are only evaluated when pricing.
func (s *Service) Validate(ctx context.Context, restaurantID, code string) (billing.Coupon, error) {
	if s == nil || s.Coupons == nil {
		return billing.Coupon{}, errors.New("coupon service not configured")
	}
	normalized := billing.NormalizeCode(code)
	if normalized == "" {
		return billing.Coupon{}, ErrCouponNotFound
	}
	c, err := s.Coupons.Coupon(ctx, restaurantID, normalized)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			obs.ObserveCoupon("not_found")
			return billing.Coupon{}, ErrCouponNotFound
		}
		return billing.Coupon{}, fmt.Errorf("find coupon: %w", err)
	}
	if err := c.Validate(s.now()); err != nil {
		obs.ObserveCoupon("invalid")
		return c, err
	}
	obs.ObserveCoupon("valid")
	return c, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Reason maps a validation error to a stable machine readable code.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrCouponNotFound):
		return "NOT_FOUND"
	case errors.Is(err, billing.ErrCouponInactive):
		return "INACTIVE"
	case errors.Is(err, billing.ErrCouponNotStarted):
		return "NOT_STARTED"
	case errors.Is(err, billing.ErrCouponExpired):
		return "EXPIRED"
	case errors.Is(err, billing.ErrCouponUsageLimitReached):
		return "USAGE_LIMIT_REACHED"
	case errors.Is(err, billing.ErrCouponConditionsUnmet):
		return "CONDITIONS_NOT_MET"
	default:
		return ""
	}
}
