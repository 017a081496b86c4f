// Package billing turns a cart and a snapshot of restaurant rules into an itemized
// bill. It performs no I/O and holds no shared mutable state.
package billing

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine evaluates carts against one prepared rule snapshot. It is safe for
// concurrent use once constructed.
type Engine struct {
	pricing   []PricingRule
	tax       []TaxRule
	discounts []DiscountRule
	coupons   []Coupon
	skipped   []error

	now      func() time.Time
	location *time.Location
	logger   zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used when Input.Timestamp is zero.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation evaluates day-of-week and time-of-day conditions in loc.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

// WithLogger sets the logger used to report skipped rules.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine prepares a rule snapshot: inactive rules are dropped, malformed rules
// are skipped and logged, and pricing, tax and discount rules are sorted by
// descending priority. The caller's slices are not modified.
func NewEngine(rules RuleSet, opts ...Option) *Engine {
	e := &Engine{now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	e.pricing = prepare(e, rules.Pricing, func(r PricingRule) bool { return r.IsActive }, validatePricingRule, func(r PricingRule) int { return r.Priority })
	e.tax = prepare(e, rules.Tax, func(r TaxRule) bool { return r.IsActive }, validateTaxRule, func(r TaxRule) int { return r.Priority })
	e.discounts = prepare(e, rules.Discounts, func(r DiscountRule) bool { return r.IsActive }, validateDiscountRule, func(r DiscountRule) int { return r.Priority })
	e.coupons = prepare(e, rules.Coupons, func(c Coupon) bool { return c.IsActive }, validateCoupon, nil)
	return e
}

func prepare[T any](e *Engine, in []T, active func(T) bool, validate func(T) error, priority func(T) int) []T {
	out := make([]T, 0, len(in))
	for _, r := range in {
		if !active(r) {
			continue
		}
		if err := validate(r); err != nil {
			e.skipped = append(e.skipped, err)
			e.logger.Warn().Err(err).Msg("billing rule skipped")
			continue
		}
		out = append(out, r)
	}
	if priority != nil {
		slices.SortStableFunc(out, func(a, b T) int { return cmp.Compare(priority(b), priority(a)) })
	}
	return out
}

// Skipped returns the ConfigErrors of rules excluded from evaluation.
func (e *Engine) Skipped() []error {
	return slices.Clone(e.skipped)
}

// Calculate is a convenience wrapper building a one-off Engine.
func Calculate(items []CartItem, rules RuleSet, couponCode string, in Input, opts ...Option) (*BillingCalculation, error) {
	return NewEngine(rules, opts...).Calculate(items, couponCode, in)
}

// Calculate prices the cart. Either a complete calculation or an error is returned.
func (e *Engine) Calculate(items []CartItem, couponCode string, in Input) (*BillingCalculation, error) {
	if err := validateCart(items); err != nil {
		return nil, err
	}
	at := in.Timestamp
	if at.IsZero() {
		at = e.now()
	}
	if e.location != nil {
		at = at.In(e.location)
	}

	lines := make([]BillingLineItem, 0, len(items))
	itemSubtotal := decimal.Zero
	subtotalAfterPricing := decimal.Zero
	for _, item := range items {
		line := ResolvePricing(e.pricing, item, at)
		itemSubtotal = itemSubtotal.Add(item.BasePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		subtotalAfterPricing = subtotalAfterPricing.Add(line.Subtotal)
		lines = append(lines, line)
	}

	ec := EvalContext{
		CartItems:     items,
		Timestamp:     at,
		Subtotal:      subtotalAfterPricing,
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		IsFirstOrder:  in.IsFirstOrder,
	}

	itemDiscounts := decimal.Zero
	for i := range lines {
		amount, ids := ResolveDiscount(e.discounts, lines[i], items[i], ec)
		lines[i].DiscountAmount = amount
		lines[i].AppliedDiscounts = ids
		itemDiscounts = itemDiscounts.Add(amount)
	}
	subtotalAfterDiscounts := subtotalAfterPricing.Sub(itemDiscounts)

	totalTax := decimal.Zero
	for i := range lines {
		amount, ids := ResolveTax(e.tax, items[i], lines[i].Subtotal.Sub(lines[i].DiscountAmount))
		lines[i].TaxAmount = amount
		lines[i].AppliedTaxRules = ids
		totalTax = totalTax.Add(amount)
	}

	couponDiscount := decimal.Zero
	var resolvedCode *string
	if strings.TrimSpace(couponCode) != "" {
		discount, coupon := ResolveCoupon(e.coupons, couponCode, subtotalAfterDiscounts, ec)
		couponDiscount = discount
		if coupon != nil {
			code := coupon.Code
			resolvedCode = &code
		}
	}

	grandTotal := subtotalAfterDiscounts.Add(totalTax).Sub(couponDiscount)
	pricingIDs, taxIDs, discountIDs := []string{}, []string{}, []string{}
	for i := range lines {
		lines[i].TotalPrice = lines[i].Subtotal.Sub(lines[i].DiscountAmount).Add(lines[i].TaxAmount)
		pricingIDs = appendUnique(pricingIDs, lines[i].AppliedPricingRules...)
		taxIDs = appendUnique(taxIDs, lines[i].AppliedTaxRules...)
		discountIDs = appendUnique(discountIDs, lines[i].AppliedDiscounts...)
	}

	return &BillingCalculation{
		LineItems:           lines,
		Subtotal:            subtotalAfterPricing,
		TotalTax:            totalTax,
		TotalDiscount:       itemDiscounts,
		CouponDiscount:      couponDiscount,
		GrandTotal:          grandTotal,
		AppliedPricingRules: pricingIDs,
		AppliedTaxRules:     taxIDs,
		AppliedDiscounts:    discountIDs,
		CouponCode:          resolvedCode,
		Breakdown: Breakdown{
			ItemSubtotal:           itemSubtotal,
			PricingAdjustments:     subtotalAfterPricing.Sub(itemSubtotal),
			SubtotalAfterPricing:   subtotalAfterPricing,
			ItemDiscounts:          itemDiscounts,
			SubtotalAfterDiscounts: subtotalAfterDiscounts,
			Taxes:                  totalTax,
			CouponDiscount:         couponDiscount,
			FinalTotal:             grandTotal,
		},
	}, nil
}

func validateCart(items []CartItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.MenuItemID)
		switch {
		case id == "":
			return &InputError{Reason: "menu item id is required"}
		case it.Quantity < 1:
			return &InputError{MenuItemID: id, Reason: "quantity must be at least 1"}
		case it.BasePrice.IsNegative():
			return &InputError{MenuItemID: id, Reason: "base price must not be negative"}
		}
		if _, dup := seen[id]; dup {
			return &InputError{MenuItemID: id, Reason: "duplicate cart line"}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func appendUnique(dst []string, ids ...string) []string {
	for _, id := range ids {
		if !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}
