package billing

import "github.com/shopspring/decimal"

// ResolveDiscount sums every matching discount rule for a priced line. Each rule is
// evaluated against the line subtotal independently and the total never exceeds it.
func ResolveDiscount(rules []DiscountRule, line BillingLineItem, item CartItem, ec EvalContext) (decimal.Decimal, []string) {
	total := decimal.Zero
	applied := []string{}
	for _, rule := range rules {
		ok, err := MatchDiscount(rule.Condition, ec, item)
		if err != nil || !ok {
			continue
		}
		total = total.Add(DiscountAmount(line.Subtotal, rule.Type, rule.Value, rule.MaxDiscount))
		applied = append(applied, rule.ID)
	}
	return decimal.Min(total, clampZero(line.Subtotal)), applied
}

// DiscountAmount computes a percentage or fixed discount against base, capped by
// maxDiscount for percentages and by base itself. The result is never negative.
// Capping each fixed amount at base changes nothing for line discounts:
// ResolveDiscount clamps the sum to the line subtotal again, so stacked fixed
// rules behave as "sum, then clamp to the subtotal".
func DiscountAmount(base decimal.Decimal, kind DiscountType, value decimal.Decimal, maxDiscount *decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch kind {
	case DiscountPercentage:
		discount = base.Mul(value).Div(hundred)
		if maxDiscount != nil {
			discount = decimal.Min(discount, *maxDiscount)
		}
	case DiscountFixedAmount:
		discount = value
	default:
		return decimal.Zero
	}
	return clampZero(decimal.Min(discount, base))
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
