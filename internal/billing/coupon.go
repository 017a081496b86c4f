package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizeCode canonicalises a coupon code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the coupon's active flag, temporal window and usage quota at now.
func (c Coupon) Validate(now time.Time) error {
	if !c.IsActive {
		return ErrCouponInactive
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return ErrCouponNotStarted
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return ErrCouponUsageLimitReached
	}
	return nil
}

// CheckCoupon runs the full redemption check for the evaluation context.
func CheckCoupon(c Coupon, ec EvalContext) error {
	if err := c.Validate(ec.Timestamp); err != nil {
		return err
	}
	if !MatchCoupon(c.Condition, ec) {
		return ErrCouponConditionsUnmet
	}
	return nil
}

// FindCoupon looks a code up case-insensitively.
func FindCoupon(coupons []Coupon, code string) (Coupon, bool) {
	want := NormalizeCode(code)
	if want == "" {
		return Coupon{}, false
	}
	for _, c := range coupons {
		if NormalizeCode(c.Code) == want {
			return c, true
		}
	}
	return Coupon{}, false
}

// ResolveCoupon validates code against the supplied coupons and returns the discount
// on subtotal. An unknown or ineligible coupon yields zero and a nil coupon.
func ResolveCoupon(coupons []Coupon, code string, subtotal decimal.Decimal, ec EvalContext) (decimal.Decimal, *Coupon) {
	coupon, ok := FindCoupon(coupons, code)
	if !ok {
		return decimal.Zero, nil
	}
	if err := CheckCoupon(coupon, ec); err != nil {
		return decimal.Zero, nil
	}
	discount := DiscountAmount(clampZero(subtotal), coupon.DiscountType, coupon.DiscountValue, coupon.MaxDiscount)
	return discount, &coupon
}
