package billing

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MatchPricing reports whether a pricing condition holds for the line at instant at.
// The error is non-nil only for a malformed time range.
func MatchPricing(c PricingCondition, item CartItem, at time.Time) (bool, error) {
	ok, err := matchSchedule(c.DayOfWeek, c.TimeRange, at)
	if err != nil || !ok {
		return false, err
	}
	if !inSet(c.Categories, item.Category) || !inSet(c.MenuItems, item.MenuItemID) {
		return false, nil
	}
	return withinQuantity(item.Quantity, c.MinQuantity, c.MaxQuantity), nil
}

// MatchTax reports whether a tax condition holds for the line, where amount is the
// line subtotal after discounts.
func MatchTax(c TaxCondition, item CartItem, amount decimal.Decimal) bool {
	if !inSet(c.Categories, item.Category) || !inSet(c.MenuItems, item.MenuItemID) {
		return false
	}
	if len(c.TaxCategories) > 0 && (item.TaxCategory == "" || !slices.Contains(c.TaxCategories, item.TaxCategory)) {
		return false
	}
	return withinAmount(amount, c.MinAmount, c.MaxAmount)
}

// MatchDiscount reports whether a discount condition holds for the line within the
// evaluation context.
func MatchDiscount(c DiscountCondition, ec EvalContext, item CartItem) (bool, error) {
	if !withinAmount(ec.Subtotal, c.MinOrderAmount, c.MaxOrderAmount) {
		return false, nil
	}
	ok, err := matchSchedule(c.DayOfWeek, c.TimeRange, ec.Timestamp)
	if err != nil || !ok {
		return false, err
	}
	if c.FirstOrderOnly && !ec.IsFirstOrder {
		return false, nil
	}
	if !inSet(c.Categories, item.Category) || !inSet(c.MenuItems, item.MenuItemID) {
		return false, nil
	}
	return withinQuantity(item.Quantity, c.MinQuantity, c.MaxQuantity), nil
}

// MatchCoupon reports whether a coupon condition holds for the whole cart.
func MatchCoupon(c CouponCondition, ec EvalContext) bool {
	if c.MinOrderAmount != nil && ec.Subtotal.LessThan(*c.MinOrderAmount) {
		return false
	}
	if c.FirstOrderOnly && !ec.IsFirstOrder {
		return false
	}
	if len(c.Categories) > 0 && !slices.ContainsFunc(ec.CartItems, func(it CartItem) bool {
		return slices.Contains(c.Categories, it.Category)
	}) {
		return false
	}
	if len(c.MenuItems) > 0 && !slices.ContainsFunc(ec.CartItems, func(it CartItem) bool {
		return slices.Contains(c.MenuItems, it.MenuItemID)
	}) {
		return false
	}
	return true
}

func matchSchedule(days []int, timeRange string, at time.Time) (bool, error) {
	if len(days) > 0 && !slices.Contains(days, int(at.Weekday())) {
		return false, nil
	}
	if timeRange == "" {
		return true, nil
	}
	window, err := ParseTimeRange(timeRange)
	if err != nil {
		return false, err
	}
	return window.Contains(at), nil
}

// inSet treats an empty set as unconstrained.
func inSet(set []string, value string) bool {
	return len(set) == 0 || slices.Contains(set, value)
}

func withinQuantity(qty int, lo, hi *int) bool {
	if lo != nil && qty < *lo {
		return false
	}
	if hi != nil && qty > *hi {
		return false
	}
	return true
}

func withinAmount(amount decimal.Decimal, lo, hi *decimal.Decimal) bool {
	if lo != nil && amount.LessThan(*lo) {
		return false
	}
	if hi != nil && amount.GreaterThan(*hi) {
		return false
	}
	return true
}
