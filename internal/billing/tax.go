package billing

import "github.com/shopspring/decimal"

// ResolveTax computes the tax of one line in two passes: non-compound rules against
// amount, then compound rules against amount plus the first pass. All matching rules
// in a pass apply.
func ResolveTax(rules []TaxRule, item CartItem, amount decimal.Decimal) (decimal.Decimal, []string) {
	total := decimal.Zero
	applied := []string{}
	for _, rule := range rules {
		if rule.IsCompound || !MatchTax(rule.Condition, item, amount) {
			continue
		}
		total = total.Add(TaxAmount(amount, rule.Application, rule.Rate))
		applied = append(applied, rule.ID)
	}

	compoundBase := amount.Add(total)
	for _, rule := range rules {
		if !rule.IsCompound || !MatchTax(rule.Condition, item, amount) {
			continue
		}
		total = total.Add(TaxAmount(compoundBase, rule.Application, rule.Rate))
		applied = append(applied, rule.ID)
	}
	return total, applied
}

// TaxAmount applies a rate to amount. Fixed-amount rules add the rate itself once per
// line, whatever the quantity.
func TaxAmount(amount decimal.Decimal, application TaxApplication, rate decimal.Decimal) decimal.Decimal {
	if application == TaxFixedAmount {
		return rate
	}
	return amount.Mul(rate).Div(hundred)
}
