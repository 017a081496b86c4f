package billing

import (
	"errors"
	"fmt"
	"strings"
)

const (
	FamilyPricing  = "pricing"
	FamilyTax      = "tax"
	FamilyDiscount = "discount"
	FamilyCoupon   = "coupon"
)

// ValidateRuleSet checks every rule for malformed data and returns the joined
// ConfigErrors, or nil when the set is well formed. Loaders use it to fail fast; the
// engine instead skips offending rules.
func ValidateRuleSet(rs RuleSet) error {
	var errs []error
	for _, r := range rs.Pricing {
		if err := validatePricingRule(r); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range rs.Tax {
		if err := validateTaxRule(r); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range rs.Discounts {
		if err := validateDiscountRule(r); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range rs.Coupons {
		if err := validateCoupon(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validatePricingRule(r PricingRule) error {
	switch r.Action.Type {
	case PriceActionPercentage, PriceActionFixedAmount, PriceActionFixedPrice:
	default:
		return &ConfigError{Family: FamilyPricing, RuleID: r.ID, Field: "action.type", Err: fmt.Errorf("unknown action %q", r.Action.Type)}
	}
	if err := validateSchedule(r.Condition.DayOfWeek, r.Condition.TimeRange); err != nil {
		return &ConfigError{Family: FamilyPricing, RuleID: r.ID, Field: "conditions", Err: err}
	}
	return nil
}

func validateTaxRule(r TaxRule) error {
	switch r.Application {
	case TaxPercentage, TaxFixedAmount:
	default:
		return &ConfigError{Family: FamilyTax, RuleID: r.ID, Field: "applicationType", Err: fmt.Errorf("unknown application %q", r.Application)}
	}
	return nil
}

func validateDiscountRule(r DiscountRule) error {
	if err := validateDiscountType(r.Type); err != nil {
		return &ConfigError{Family: FamilyDiscount, RuleID: r.ID, Field: "type", Err: err}
	}
	if err := validateSchedule(r.Condition.DayOfWeek, r.Condition.TimeRange); err != nil {
		return &ConfigError{Family: FamilyDiscount, RuleID: r.ID, Field: "conditions", Err: err}
	}
	return nil
}

func validateCoupon(c Coupon) error {
	if strings.TrimSpace(c.Code) == "" {
		return &ConfigError{Family: FamilyCoupon, RuleID: c.ID, Field: "code", Err: errors.New("code is required")}
	}
	if err := validateDiscountType(c.DiscountType); err != nil {
		return &ConfigError{Family: FamilyCoupon, RuleID: c.ID, Field: "discountType", Err: err}
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return &ConfigError{Family: FamilyCoupon, RuleID: c.ID, Field: "endDate", Err: errors.New("end date precedes start date")}
	}
	return nil
}

func validateDiscountType(t DiscountType) error {
	switch t {
	case DiscountPercentage, DiscountFixedAmount:
		return nil
	default:
		return fmt.Errorf("unknown discount type %q", t)
	}
}

func validateSchedule(days []int, timeRange string) error {
	for _, d := range days {
		if d < 0 || d > 6 {
			return fmt.Errorf("day of week %d out of range", d)
		}
	}
	if timeRange == "" {
		return nil
	}
	_, err := ParseTimeRange(timeRange)
	return err
}
